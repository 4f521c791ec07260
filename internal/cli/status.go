package cli

import (
	"context"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Tim-sandbox/barista/pkg/aggregate"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/store"
)

// statusCommand creates the "status" command.
func (c *CLI) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [project]",
		Short: "Show the license and security status of a project",
		Long: `Show the highest license status and the highest vulnerability severity of
a project's latest completed scan, with the findings grouped by license and
by severity.

Without an argument an interactive list selects the project.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var p *model.Project
			if len(args) == 1 {
				id, err := parseProjectID(args[0])
				if err != nil {
					return err
				}
				if p, err = a.store.GetProject(ctx, id); err != nil {
					return err
				}
			} else {
				if p, err = selectProject(ctx, a.store); err != nil || p == nil {
					return err
				}
			}
			return printStatus(ctx, a.agg, p)
		},
	}
}

// selectProject lets the user pick a project. It returns nil when the
// user quits without choosing.
func selectProject(ctx context.Context, db *store.Store) (*model.Project, error) {
	projects, err := db.ListProjects(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		printInfo("No projects")
		return nil, nil
	}
	final, err := tea.NewProgram(NewProjectListModel(projects), tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(ProjectListModel)
	if !ok || m.Selected == nil {
		printDetail("No selection made")
		return nil, nil
	}
	return m.Selected, nil
}

func printStatus(ctx context.Context, agg *aggregate.Aggregator, p *model.Project) error {
	latest, err := agg.LatestCompletedScan(ctx, p.ID)
	if err != nil {
		return err
	}
	licenseStatus, err := agg.HighestLicenseStatus(ctx, p.ID)
	if err != nil {
		return err
	}
	severity, err := agg.HighestSeverity(ctx, p.ID)
	if err != nil {
		return err
	}

	fmt.Println(StyleTitle.Render(fmt.Sprintf("#%d %s", p.ID, p.Name)))
	if latest == nil {
		printKeyValue("Latest scan", StyleDim.Render("none"))
		printKeyValue("Licenses", licenseStyle(licenseStatus).Render(licenseStatus.String()))
		printKeyValue("Security", severityStyle(severity).Render(severity.String()))
		printNextStep("Start a scan", fmt.Sprintf("barista scan start %d", p.ID))
		return nil
	}
	printKeyValue("Latest scan", latest.ID+" "+StyleDim.Render(formatTime(latest.CompletedAt)))
	printKeyValue("Licenses", licenseStyle(licenseStatus).Render(licenseStatus.String()))
	printKeyValue("Security", severityStyle(severity).Render(severity.String()))

	licenses, err := agg.DistinctBy(ctx, p.ID, model.DimensionLicense, aggregate.KeyName)
	if err != nil {
		return err
	}
	severities, err := agg.DistinctBy(ctx, p.ID, model.DimensionSecurity, aggregate.KeySeverity)
	if err != nil {
		return err
	}
	if len(licenses) > 0 {
		printNewline()
		printTable([]string{"License", "Packages"}, countRows(licenses))
	}
	if len(severities) > 0 {
		printNewline()
		printTable([]string{"Severity", "Findings"}, countRows(severities))
	}
	return nil
}

func countRows(counts []model.Count) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Key, strconv.Itoa(c.Count)})
	}
	return rows
}
