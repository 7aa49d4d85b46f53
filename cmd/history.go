package cmd

import (
	"context"
	"fmt"

	"github.com/dalili-app/dalili/pkg/history"
	"github.com/urfave/cli/v3"
)

// HistoryCommand creates the history command
func HistoryCommand() *cli.Command {
	scopeFlag := &cli.StringFlag{
		Name:  "scope",
		Usage: "History scope: global or marketplace",
		Value: "global",
	}
	userFlag := &cli.StringFlag{
		Name:  "user",
		Usage: "Identity owning the history (empty for anonymous)",
	}

	return &cli.Command{
		Name:  "history",
		Usage: "Inspect and edit search history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Show the merged search history",
				Flags: []cli.Flag{scopeFlag, userFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					return listHistory(ctx, c.String("config"), c.String("user"), c.String("scope"))
				},
			},
			{
				Name:      "record",
				Usage:     "Record a search",
				ArgsUsage: "<query>",
				Flags:     []cli.Flag{scopeFlag, userFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() == 0 {
						return fmt.Errorf("query argument is required")
					}
					return recordHistory(ctx, c.String("config"), c.String("user"), c.String("scope"), c.Args().First())
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a history entry by id",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{scopeFlag, userFlag,
					&cli.StringFlag{
						Name:  "text",
						Usage: "Entry text, needed to clear the device cache too",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() == 0 {
						return fmt.Errorf("id argument is required")
					}
					return deleteHistory(ctx, c.String("config"), c.String("scope"), c.Args().First(), c.String("text"))
				},
			},
		},
	}
}

func listHistory(ctx context.Context, configPath, user, scopeName string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	entries := env.historian.Load(ctx, user, history.ParseScope(scopeName))
	if len(entries) == 0 {
		fmt.Println("No search history")
		return nil
	}

	for i, e := range entries {
		source := "saved"
		if e.LocalOnly() {
			source = "this device"
		}
		fmt.Printf("%d. %s (%s) [%s]\n", i+1, e.Query, source, e.ID)
	}
	return nil
}

func recordHistory(ctx context.Context, configPath, user, scopeName, text string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	env.historian.Record(ctx, user, history.ParseScope(scopeName), text, nil)
	fmt.Printf("Recorded '%s'\n", text)
	return nil
}

func deleteHistory(ctx context.Context, configPath, scopeName, id, text string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	env.historian.Delete(ctx, history.ParseScope(scopeName), id, text)
	fmt.Printf("Deleted %s\n", id)
	return nil
}
