package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/stats"
	"github.com/Tim-sandbox/barista/pkg/store"
)

// statsCommand creates the "stats" command group.
func (c *CLI) statsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Fleet-wide compliance metrics",
		Long: `Fleet metrics cover the latest completed scan of every organization
project. --owner restricts them to projects of the given owners.`,
	}

	cmd.AddCommand(c.statsIndexCommand())
	cmd.AddCommand(c.statsTopCommand())
	cmd.AddCommand(c.statsTrendCommand())
	cmd.AddCommand(c.statsSummaryCommand())
	cmd.AddCommand(c.statsBadgeCommand())

	return cmd
}

// fleetCommand builds a stats subcommand that runs fn against the fleet
// filter given by --owner.
func (c *CLI) fleetCommand(cmd *cobra.Command, fn func(cmd *cobra.Command, args []string, a *app, f store.Filter) error) *cobra.Command {
	var owners string
	cmd.Flags().StringVar(&owners, "owner", "", "comma-separated owner ids")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := c.open(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a, stats.Fleet(store.ParseOwnerIDs(owners)...))
	}
	return cmd
}

// statsIndexCommand creates the "stats index" subcommand.
func (c *CLI) statsIndexCommand() *cobra.Command {
	return c.fleetCommand(&cobra.Command{
		Use:   "index",
		Short: "Show the license non-compliance and high vulnerability indices",
		Args:  cobra.NoArgs,
	}, func(cmd *cobra.Command, args []string, a *app, f store.Filter) error {
		ctx := cmd.Context()
		licenseIndex, err := a.stats.LicenseNonComplianceIndex(ctx, f)
		if err != nil {
			return err
		}
		vulnIndex, err := a.stats.HighVulnerabilityIndex(ctx, f)
		if err != nil {
			return err
		}
		printKeyValue("Licenses", StyleNumber.Render(formatIndex(licenseIndex))+StyleDim.Render(" non-compliant"))
		printKeyValue("Security", StyleNumber.Render(formatIndex(vulnIndex))+StyleDim.Render(" high or critical"))
		return nil
	})
}

// statsTopCommand creates the "stats top" subcommand.
func (c *CLI) statsTopCommand() *cobra.Command {
	lists := []struct {
		name   string
		header string
		load   func(*stats.Engine, context.Context, store.Filter) ([]model.Count, error)
	}{
		{"licenses", "License", (*stats.Engine).TopLicenses},
		{"components", "Component", (*stats.Engine).TopComponents},
		{"vulnerabilities", "Dependency path", (*stats.Engine).TopVulnerabilities},
	}
	names := make([]string, len(lists))
	for i, l := range lists {
		names[i] = l.name
	}

	return c.fleetCommand(&cobra.Command{
		Use:       "top [licenses|components|vulnerabilities]",
		Short:     "Show the most frequent licenses, components or vulnerable paths",
		ValidArgs: names,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	}, func(cmd *cobra.Command, args []string, a *app, f store.Filter) error {
		for _, l := range lists {
			if len(args) == 1 && args[0] != l.name {
				continue
			}
			counts, err := l.load(a.stats, cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Println(StyleTitle.Render("Top " + l.name))
			if len(counts) == 0 {
				printDetail("none")
				continue
			}
			printTable([]string{l.header, "Count"}, countRows(counts))
		}
		return nil
	})
}

// statsTrendCommand creates the "stats trend" subcommand.
func (c *CLI) statsTrendCommand() *cobra.Command {
	return c.fleetCommand(&cobra.Command{
		Use:   "trend",
		Short: "Show projects and scans created per month over the last year",
		Args:  cobra.NoArgs,
	}, func(cmd *cobra.Command, args []string, a *app, f store.Filter) error {
		ctx := cmd.Context()
		projects, err := a.stats.MonthlyProjects(ctx, f)
		if err != nil {
			return err
		}
		scans, err := a.stats.MonthlyScans(ctx, f)
		if err != nil {
			return err
		}
		printTable([]string{"Month", "Projects", "Scans"}, trendRows(projects, scans))
		return nil
	})
}

// trendRows merges two monthly series into rows ordered by month.
func trendRows(projects, scans []model.Count) [][]string {
	type pair struct{ projects, scans int }
	byMonth := make(map[string]*pair)
	var months []string
	add := func(k string) *pair {
		p, ok := byMonth[k]
		if !ok {
			p = &pair{}
			byMonth[k] = p
			months = append(months, k)
		}
		return p
	}
	for _, c := range projects {
		add(c.Key).projects = c.Count
	}
	for _, c := range scans {
		add(c.Key).scans = c.Count
	}
	slices.Sort(months)

	rows := make([][]string, 0, len(months))
	for _, m := range months {
		p := byMonth[m]
		rows = append(rows, []string{m, fmt.Sprint(p.projects), fmt.Sprint(p.scans)})
	}
	return rows
}

// statsSummaryCommand creates the "stats summary" subcommand.
func (c *CLI) statsSummaryCommand() *cobra.Command {
	return c.fleetCommand(&cobra.Command{
		Use:   "summary",
		Short: "Print every fleet metric as JSON",
		Args:  cobra.NoArgs,
	}, func(cmd *cobra.Command, args []string, a *app, f store.Filter) error {
		s, err := a.stats.Summarize(cmd.Context(), f)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	})
}

// statsBadgeCommand creates the "stats badge" subcommand.
func (c *CLI) statsBadgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "badge <project> [kind]",
		Short:     "Print the status badges of a project",
		ValidArgs: stats.BadgeKinds,
		Args:      cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.store.GetProject(ctx, id); err != nil {
				return err
			}
			kinds := stats.BadgeKinds
			if len(args) == 2 {
				kinds = args[1:]
			}
			for _, kind := range kinds {
				b, err := a.stats.Badge(ctx, id, kind)
				if err != nil {
					return err
				}
				printKeyValue(b.Label, b.Message+" "+StyleDim.Render(b.Color))
			}
			return nil
		},
	}
}
