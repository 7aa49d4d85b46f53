package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dalili-app/dalili/pkg/index"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/urfave/cli/v3"
)

const importBatchSize = 500

// ImportCommand creates the import command
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import listings from a JSON-lines file (.zst and .gz supported)",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "optimize",
				Usage: "Run PRAGMA optimize after the import",
				Value: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return fmt.Errorf("file argument is required")
			}
			return importListings(ctx, c.String("config"), c.Args().First(), c.Bool("optimize"))
		},
	}
}

func importListings(ctx context.Context, configPath, path string, optimize bool) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening import file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			fmt.Printf("Warning: failed to close import file: %v\n", err)
		}
	}()

	reader, closeReader, err := decompressingReader(file, path)
	if err != nil {
		return err
	}
	defer closeReader()

	start := time.Now()
	total := 0
	skipped := 0
	batch := make([]index.Listing, 0, importBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := env.store.PutBatch(ctx, batch); err != nil {
			return fmt.Errorf("storing batch at listing %d: %w", total, err)
		}
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var l index.Listing
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			fmt.Printf("Warning: skipping malformed listing on line %d: %v\n", line, err)
			skipped++
			continue
		}
		if l.ID == "" || l.Title == "" {
			fmt.Printf("Warning: skipping listing on line %d: id and title are required\n", line)
			skipped++
			continue
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = time.Now().UTC()
		}

		batch = append(batch, l)
		total++
		if len(batch) == importBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading import file: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	fmt.Printf("Imported %d listings in %s", total, time.Since(start).Round(time.Millisecond))
	if skipped > 0 {
		fmt.Printf(" (%d skipped)", skipped)
	}
	fmt.Println()

	if optimize && total > 0 {
		if err := env.store.Optimize(); err != nil {
			fmt.Printf("Warning: optimize after import failed: %v\n", err)
		}
	}
	return nil
}

// decompressingReader wraps file according to the path extension.
func decompressingReader(file *os.File, path string) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(file)
		if err != nil {
			return nil, nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return zr, zr.Close, nil
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(file)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return gr, func() {
			if err := gr.Close(); err != nil {
				fmt.Printf("Warning: failed to close gzip reader: %v\n", err)
			}
		}, nil
	default:
		return file, func() {}, nil
	}
}
