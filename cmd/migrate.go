package cmd

import (
	"context"
	"fmt"

	"github.com/dalili-app/dalili/pkg/db"
	"github.com/urfave/cli/v3"
)

// MigrateCommand creates the migrate command
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Show migration status without applying migrations",
				Value: false,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runMigrations(c.String("config"), c.Bool("status"))
		},
	}
}

func runMigrations(configPath string, statusOnly bool) error {
	// Open applies pending migrations itself, so migrate mostly exists
	// for the status view and for fresh databases.
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	manager := db.NewMigrationManager(env.conn)
	status, err := manager.GetMigrationStatus()
	if err != nil {
		return fmt.Errorf("getting migration status: %w", err)
	}

	if statusOnly {
		fmt.Printf("Applied migrations: %d\n", len(status.Applied))
		for _, m := range status.Applied {
			line := fmt.Sprintf("  ✓ %03d %s", m.Version, m.Name)
			if m.AppliedAt != nil {
				line += fmt.Sprintf(" (applied %s)", m.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Println(line)
		}
		fmt.Printf("Pending migrations: %d\n", len(status.Pending))
		for _, m := range status.Pending {
			fmt.Printf("  · %03d %s\n", m.Version, m.Name)
		}
		return nil
	}

	if len(status.Pending) == 0 {
		fmt.Println("Database is up to date")
		return nil
	}

	if err := manager.ApplyPendingMigrations(); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	fmt.Printf("Applied %d migration(s)\n", len(status.Pending))
	return nil
}
