package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dalili-app/dalili/pkg/catalog"
	"github.com/dalili-app/dalili/pkg/config"
	"github.com/urfave/cli/v3"
)

// InitCommand creates the init command
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize configuration and catalog",
		Action: func(ctx context.Context, c *cli.Command) error {
			return initConfig(c.String("config"))
		},
	}
}

// initConfig writes the template configuration and the sample catalog
// next to it.
func initConfig(configPath string) error {
	cfg, err := config.GetDefaultConfig()
	if err != nil {
		return fmt.Errorf("building default config: %w", err)
	}

	if err := cfg.SaveTemplateConfig(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration initialized at %s\n", configPath)

	catalogPath := filepath.Join(filepath.Dir(configPath), "catalog.toml")
	if _, err := os.Stat(catalogPath); err == nil {
		fmt.Printf("Catalog already exists at %s, leaving it untouched\n", catalogPath)
		return nil
	}

	if err := os.WriteFile(catalogPath, catalog.SampleTOML(), 0644); err != nil {
		return fmt.Errorf("writing sample catalog: %w", err)
	}
	fmt.Printf("Sample catalog written to %s\n", catalogPath)
	return nil
}
