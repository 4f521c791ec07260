package cli

import (
	"context"
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
)

// scanCommand creates the "scan" command group.
func (c *CLI) scanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scan",
		Aliases: []string{"scans"},
		Short:   "Run scans and inspect their results",
	}

	cmd.AddCommand(c.scanStartCommand())
	cmd.AddCommand(c.scanListCommand())
	cmd.AddCommand(c.scanShowCommand())
	cmd.AddCommand(c.scanLogsCommand())

	return cmd
}

// scanStartCommand creates the "scan start" subcommand.
func (c *CLI) scanStartCommand() *cobra.Command {
	var (
		branch string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "start <project>",
		Short: "Scan a project and wait for the result",
		Long: `Scan a project in this process and wait until the scan is completed or
failed. Interrupting the command cancels the scan, which is then recorded
as failed with INTERRUPTED.

With --watch an interactive view follows the scan state.`,
		Example: `  barista scan start 3
  barista scan start 3 --branch release/2.x --watch`,
		Args: cobra.ExactArgs(1),
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

			prog := newProgress(c.Logger)
			var scan *model.Scan
			if watch {
				scan, err = c.watchScan(ctx, a, id, branch)
			} else {
				scan, err = c.runScan(ctx, a, id, branch)
			}
			if err != nil {
				return err
			}
			prog.done("Scan " + string(scan.State))

			printScan(scan)
			if scan.State == model.ScanFailed {
				return bErrors.New(bErrors.Code(scan.ErrorCode), "scan %s failed: %s", scan.ID, scan.Error)
			}
			printNextStep("Review the result", fmt.Sprintf("barista status %d", id))
			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to scan (default: repository default branch)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow the scan in an interactive view")
	return cmd
}

// runScan runs the scan in the foreground behind a spinner.
func (c *CLI) runScan(ctx context.Context, a *app, projectID int64, branch string) (*model.Scan, error) {
	spinner := newSpinner(ctx, "Scanning...")
	spinner.Start()
	defer spinner.Stop()
	return a.runner.Run(ctx, projectID, branch)
}

// watchScan starts the scan in the background and follows it with a
// ScanWatchModel. Leaving the view cancels the scan.
func (c *CLI) watchScan(ctx context.Context, a *app, projectID int64, branch string) (*model.Scan, error) {
	p, err := a.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	started, err := a.runner.Start(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	m := NewScanWatchModel(started, p.Name, func() (*model.Scan, error) {
		return a.store.GetScan(context.WithoutCancel(ctx), started.ID)
	})
	final, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil || !final.(ScanWatchModel).Done() {
		a.runner.Close()
	}
	a.runner.Wait()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return a.store.GetScan(context.WithoutCancel(ctx), started.ID)
}

// scanListCommand creates the "scan list" subcommand.
func (c *CLI) scanListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List the scans of a project, newest first",
		Args:  cobra.ExactArgs(1),
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
			scans, err := a.store.ListScans(ctx, id, limit)
			if err != nil {
				return err
			}
			if len(scans) == 0 {
				printInfo("No scans yet")
				printNextStep("Start one", fmt.Sprintf("barista scan start %d", id))
				return nil
			}
			printTable([]string{"Scan", "Branch", "State", "Created", "Completed", "Error"}, scanRows(scans))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultListLimit, "maximum number of scans")
	return cmd
}

func scanRows(scans []model.Scan) [][]string {
	rows := make([][]string, 0, len(scans))
	for _, s := range scans {
		branch := s.Branch
		if branch == "" {
			branch = "-"
		}
		rows = append(rows, []string{
			s.ID,
			branch,
			scanStateStyle(s.State).Render(string(s.State)),
			formatTime(&s.CreatedAt),
			formatTime(s.CompletedAt),
			s.ErrorCode,
		})
	}
	return rows
}

// scanShowCommand creates the "scan show" subcommand.
func (c *CLI) scanShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <scan-id>",
		Short: "Show one scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			scan, err := a.store.GetScan(ctx, args[0])
			if err != nil {
				return err
			}
			printScan(scan)
			return nil
		},
	}
}

func printScan(s *model.Scan) {
	fmt.Println(StyleTitle.Render("Scan " + s.ID))
	printKeyValue("Project", strconv.FormatInt(s.ProjectID, 10))
	if s.Branch != "" {
		printKeyValue("Branch", s.Branch)
	}
	printKeyValue("State", scanStateStyle(s.State).Render(string(s.State)))
	printKeyValue("Created", formatTime(&s.CreatedAt))
	printKeyValue("Started", formatTime(s.StartedAt))
	printKeyValue("Completed", formatTime(s.CompletedAt))
	if s.ErrorCode != "" {
		printKeyValue("Error", StyleError.Render(s.ErrorCode)+" "+s.Error)
	}
}

// scanLogsCommand creates the "scan logs" subcommand.
func (c *CLI) scanLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <scan-id>",
		Short: "Print the captured fetcher output of a scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.store.GetScan(ctx, args[0]); err != nil {
				return err
			}
			l, err := a.logs.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Print(l.Log)
			return nil
		},
	}
}
