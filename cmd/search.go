package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dalili-app/dalili/pkg/coordinator"
	"github.com/dalili-app/dalili/pkg/index"
	"github.com/dalili-app/dalili/pkg/query"
	"github.com/urfave/cli/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Styles for search output
var (
	resultTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))

	resultMetaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	resultPriceStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("214"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33")).
			MarginTop(1)

	noResultsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32"))
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search listings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "query",
				Usage: "Search text",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Category filter (or 'all')",
			},
			&cli.StringFlag{
				Name:  "area",
				Usage: "Area filter",
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "Sort order: recent or name",
				Value: "recent",
			},
			&cli.FloatFlag{
				Name:  "min-price",
				Usage: "Minimum price",
			},
			&cli.FloatFlag{
				Name:  "max-price",
				Usage: "Maximum price",
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "Result page",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "interactive",
				Usage: "Read queries from stdin with live debounced fetching",
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "Identity to record history under",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Bool("interactive") {
				return interactiveSearch(ctx, c.String("config"), c.String("user"))
			}
			return oneShotSearch(ctx, c)
		},
	}
}

func oneShotSearch(ctx context.Context, c *cli.Command) error {
	env, err := openEnvironment(c.String("config"))
	if err != nil {
		return err
	}
	defer env.Close()

	q := query.Query{
		Text:     c.String("query"),
		Category: c.String("category"),
		AreaID:   c.String("area"),
		Page:     c.Int("page"),
		PageSize: env.cfg.PageSize,
	}
	if q.Category == "all" {
		q.Category = ""
	}
	if c.IsSet("min-price") {
		v := c.Float("min-price")
		q.MinPrice = &v
	}
	if c.IsSet("max-price") {
		v := c.Float("max-price")
		q.MaxPrice = &v
	}
	if q.Page < 1 {
		q.Page = 1
	}

	if q.AreaID == "" {
		if current, ok := env.areas.Current(); ok && current != nil {
			q.AreaID = current.ID
		}
	}

	page, err := env.store.Search(ctx, q, query.ParseSort(c.String("sort")), nil)
	if err != nil {
		return fmt.Errorf("searching listings: %w", err)
	}

	renderResults(q, page)
	return nil
}

func renderResults(q query.Query, page *index.Page) {
	if len(page.Items) == 0 {
		message := "No listings found"
		if text := q.EffectiveText(); text != "" {
			message += fmt.Sprintf(" for '%s'", text)
		}
		fmt.Println(noResultsStyle.Render(message + "."))
		return
	}

	header := fmt.Sprintf("%d of %d listings", len(page.Items), page.Total)
	if text := q.EffectiveText(); text != "" {
		header += fmt.Sprintf(" for '%s'", text)
	}
	fmt.Println(headerStyle.Render(header))

	titleCaser := cases.Title(language.English)
	for i, item := range page.Items {
		fmt.Printf("%d. %s\n", i+1, resultTitleStyle.Render(item.Title))

		meta := titleCaser.String(strings.ReplaceAll(item.Category, "-", " "))
		if item.SubType != "" {
			meta += " · " + item.SubType
		}
		if item.AreaID != "" {
			meta += " · " + item.AreaID
		}
		meta += " · " + item.CreatedAt.Format("2006-01-02")
		fmt.Printf("   %s  %s\n", resultPriceStyle.Render(strconv.FormatFloat(item.Price, 'f', -1, 64)), resultMetaStyle.Render(meta))
	}
}

// interactiveSearch reads from stdin: plain lines are treated as the
// evolving search text, slash commands change filters or submit.
func interactiveSearch(ctx context.Context, configPath, user string) error {
	env, err := openEnvironment(configPath)
	if err != nil {
		return err
	}
	defer env.Close()

	coord := coordinator.New(env.store, env.historian, env.areas, func(u coordinator.Update) {
		switch {
		case u.Cleared:
			fmt.Println(noResultsStyle.Render("(cleared, keep typing)"))
		case u.Err != nil:
			fmt.Println(errorStyle.Render(fmt.Sprintf("fetch failed: %v (type /retry)", u.Err)))
		default:
			renderResults(u.Query, &index.Page{Items: u.Results, Total: u.Total})
		}
		fmt.Print(promptStyle.Render("> "))
	}, coordinator.WithPageSize(env.cfg.PageSize), coordinator.WithDebounce(env.cfg.Debounce.Duration))
	defer coord.Close()

	if user != "" {
		coord.SetIdentity(user)
	}

	fmt.Println("Type to search. Commands: /category <id>, /area <id>, /sort <recent|name>, /min <n>, /max <n>, /history, /submit, /quit")
	fmt.Print(promptStyle.Render("> "))

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if !strings.HasPrefix(line, "/") {
			coord.OnTextChange(line)
			continue
		}

		cmd, arg, _ := strings.Cut(line[1:], " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "quit", "q":
			return nil
		case "submit":
			target := coord.Submit(ctx)
			fmt.Printf("Saved. Results live at %s\n", target)
			fmt.Print(promptStyle.Render("> "))
		case "history":
			for i, e := range coord.Suggestions(ctx) {
				source := "saved"
				if e.LocalOnly() {
					source = "this device"
				}
				fmt.Printf("%d. %s %s\n", i+1, e.Query, resultMetaStyle.Render("("+source+")"))
			}
			fmt.Print(promptStyle.Render("> "))
		case "retry":
			coord.Refresh()
		case "category":
			coord.OnFilterChange(coordinator.FilterPatch{Category: &arg})
		case "area":
			coord.OnFilterChange(coordinator.FilterPatch{AreaID: &arg})
		case "sort":
			sort := query.ParseSort(arg)
			coord.OnFilterChange(coordinator.FilterPatch{Sort: &sort})
		case "min":
			if v, err := strconv.ParseFloat(arg, 64); err == nil {
				coord.OnFilterChange(coordinator.FilterPatch{MinPrice: &v})
			} else {
				fmt.Println(errorStyle.Render("usage: /min <number>"))
				fmt.Print(promptStyle.Render("> "))
			}
		case "max":
			if v, err := strconv.ParseFloat(arg, 64); err == nil {
				coord.OnFilterChange(coordinator.FilterPatch{MaxPrice: &v})
			} else {
				fmt.Println(errorStyle.Render("usage: /max <number>"))
				fmt.Print(promptStyle.Render("> "))
			}
		default:
			fmt.Println(errorStyle.Render("unknown command: /" + cmd))
			fmt.Print(promptStyle.Render("> "))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return nil
}
