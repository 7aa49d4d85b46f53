package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// AreasCommand creates the areas command
func AreasCommand() *cli.Command {
	return &cli.Command{
		Name:  "areas",
		Usage: "Inspect and change the area scope",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List configured areas",
				Action: func(ctx context.Context, c *cli.Command) error {
					return listAreas(c.String("config"))
				},
			},
			{
				Name:      "set",
				Usage:     "Select the current area",
				ArgsUsage: "<area-id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() == 0 {
						return fmt.Errorf("area-id argument is required")
					}
					return setArea(c.String("config"), c.Args().First())
				},
			},
			{
				Name:  "clear",
				Usage: "Search across all areas",
				Action: func(ctx context.Context, c *cli.Command) error {
					return clearArea(c.String("config"))
				},
			},
		},
	}
}

func listAreas(configPath string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	current, initialized := env.areas.Current()
	for _, a := range env.areas.List() {
		marker := "  "
		if current != nil && current.ID == a.ID {
			marker = "* "
		}
		fmt.Printf("%s%s  (%s)\n", marker, a.Name, a.ID)
	}

	switch {
	case !initialized:
		fmt.Println("\nNo area selected yet, searches cover all areas")
	case current == nil:
		fmt.Println("\nSearching across all areas")
	}
	return nil
}

func setArea(configPath, id string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	if !env.areas.SetByID(id) {
		return fmt.Errorf("area '%s' not found", id)
	}
	fmt.Printf("Area set to %s\n", id)
	return nil
}

func clearArea(configPath string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	env.areas.Clear()
	fmt.Println("Searching across all areas")
	return nil
}
