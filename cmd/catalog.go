package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// CatalogCommand creates the catalog command
func CatalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Inspect the category catalog",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List categories in display order",
				Action: func(ctx context.Context, c *cli.Command) error {
					return listCategories(c.String("config"))
				},
			},
			{
				Name:      "fields",
				Usage:     "Show the facet fields resolved for a category",
				ArgsUsage: "<category-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Sub-type value to resolve fields for",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() == 0 {
						return fmt.Errorf("category-id argument is required")
					}
					return showFields(c.String("config"), c.Args().First(), c.String("type"))
				},
			},
		},
	}
}

func listCategories(configPath string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	for _, cat := range env.catalog.Categories() {
		line := fmt.Sprintf("%s  (%s)", cat.Label, cat.ID)
		if len(cat.SubTypes) > 0 {
			line += fmt.Sprintf(", %d sub-types via '%s'", len(cat.SubTypes), cat.SelectorKey)
		}
		fmt.Println(line)
	}
	return nil
}

func showFields(configPath, categoryID, subType string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	cat, ok := env.catalog.Category(categoryID)
	if !ok {
		return fmt.Errorf("category '%s' not found", categoryID)
	}

	attrs := map[string]string{}
	if subType != "" && cat.SelectorKey != "" {
		attrs[cat.SelectorKey] = subType
	}

	fields := env.catalog.ResolveFields(categoryID, attrs)
	if len(fields) == 0 {
		fmt.Printf("No facet fields for %s\n", categoryID)
		return nil
	}

	fmt.Printf("Fields for %s", cat.Label)
	if subType != "" {
		fmt.Printf(" (%s)", subType)
	}
	fmt.Println(":")
	for _, f := range fields {
		line := fmt.Sprintf("  %-16s %-10s %s", f.Name, f.Kind, f.Label)
		if len(f.Options) > 0 {
			line += fmt.Sprintf("  options: %v", f.Options)
		}
		if f.Required {
			line += "  (required)"
		}
		fmt.Println(line)
	}
	return nil
}
