package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// OptimizeCommand creates the optimize command
func OptimizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "Database optimization and maintenance commands",
		Commands: []*cli.Command{
			{
				Name:  "analyze",
				Usage: "Run ANALYZE to update query planner statistics",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(c.String("config"), "ANALYZE", func(env *environment) error {
						return env.store.Analyze()
					})
				},
			},
			{
				Name:  "vacuum",
				Usage: "Run VACUUM to defragment the database",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Println("This may take a while for large databases...")
					return withStore(c.String("config"), "VACUUM", func(env *environment) error {
						return env.store.Vacuum()
					})
				},
			},
			{
				Name:  "checkpoint",
				Usage: "Run WAL checkpoint to flush changes",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(c.String("config"), "WAL checkpoint", func(env *environment) error {
						return env.store.WALCheckpoint()
					})
				},
			},
			{
				Name:  "all",
				Usage: "Run all optimization operations (optimize, analyze, checkpoint)",
				Action: func(ctx context.Context, c *cli.Command) error {
					return optimizeAll(c.String("config"))
				},
			},
		},
	}
}

func withStore(configPath, label string, fn func(*environment) error) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	fmt.Printf("Running %s...\n", label)
	if err := fn(env); err != nil {
		return fmt.Errorf("%s failed: %w", label, err)
	}
	fmt.Printf("✓ %s completed\n", label)
	return nil
}

func optimizeAll(configPath string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	steps := []struct {
		label string
		fn    func() error
	}{
		{"PRAGMA optimize", env.store.Optimize},
		{"ANALYZE", env.store.Analyze},
		{"WAL checkpoint", env.store.WALCheckpoint},
	}

	for _, step := range steps {
		fmt.Printf("Running %s...\n", step.label)
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s failed: %w", step.label, err)
		}
		fmt.Printf("✓ %s completed\n", step.label)
		fmt.Println()
	}

	fmt.Println("All optimization operations completed successfully")
	return nil
}
