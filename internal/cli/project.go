package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tim-sandbox/barista/pkg/deps/fetchers"
	bErrors "github.com/Tim-sandbox/barista/pkg/errors"
	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/repo"
	"github.com/Tim-sandbox/barista/pkg/store"
)

// projectCommand creates the "project" command group.
func (c *CLI) projectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Register and inspect projects",
	}

	cmd.AddCommand(c.projectCreateCommand())
	cmd.AddCommand(c.projectUpdateCommand())
	cmd.AddCommand(c.projectListCommand())
	cmd.AddCommand(c.projectShowCommand())
	cmd.AddCommand(c.projectBranchesCommand())
	cmd.AddCommand(c.projectValidateCommand())

	return cmd
}

// projectFlags are the editable project fields shared by create and update.
type projectFlags struct {
	name            string
	gitURL          string
	packageManager  string
	owner           string
	developmentType string
	outputFormat    string
	deploymentType  string
}

func (f *projectFlags) register(cmd *cobra.Command) {
	supported := make([]string, 0, len(fetchers.Supported()))
	for _, pm := range fetchers.Supported() {
		supported = append(supported, string(pm))
	}

	cmd.Flags().StringVar(&f.name, "name", "", "project name")
	cmd.Flags().StringVar(&f.gitURL, "git-url", "", "repository URL")
	cmd.Flags().StringVarP(&f.packageManager, "package-manager", "p", "", "package manager ("+strings.Join(supported, ", ")+")")
	cmd.Flags().StringVar(&f.owner, "owner", "", "owning user id")
	cmd.Flags().StringVar(&f.developmentType, "development-type", "", "organization or community")
	cmd.Flags().StringVar(&f.outputFormat, "output-format", "", "preferred report format")
	cmd.Flags().StringVar(&f.deploymentType, "deployment-type", "", "deployment type label")
}

// apply copies the flags the user set onto p.
func (f *projectFlags) apply(cmd *cobra.Command, p *model.Project) error {
	set := cmd.Flags().Changed
	if set("name") {
		p.Name = f.name
	}
	if set("git-url") {
		p.GitURL = f.gitURL
	}
	if set("package-manager") {
		pm := model.PackageManager(strings.ToLower(f.packageManager))
		if !slices.Contains(fetchers.Supported(), pm) {
			return bErrors.New(bErrors.ErrCodeUnsupported, "unsupported package manager %q", f.packageManager)
		}
		p.PackageManager = pm
	}
	if set("owner") {
		p.UserID = f.owner
	}
	if set("development-type") {
		switch f.developmentType {
		case model.DevelopmentOrganization, model.DevelopmentCommunity:
			p.DevelopmentType = f.developmentType
		default:
			return bErrors.New(bErrors.ErrCodeInvalidInput, "development type must be %q or %q",
				model.DevelopmentOrganization, model.DevelopmentCommunity)
		}
	}
	if set("output-format") {
		p.OutputFormat = f.outputFormat
	}
	if set("deployment-type") {
		p.DeploymentType = f.deploymentType
	}
	return nil
}

// projectCreateCommand creates the "project create" subcommand.
func (c *CLI) projectCreateCommand() *cobra.Command {
	var (
		flags    projectFlags
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a project",
		Example: `  barista project create --name web --git-url https://github.com/acme/web.git -p npm --owner alice
  barista project create --name lib --git-url https://github.com/acme/lib.git -p maven --validate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var p model.Project
			if err := flags.apply(cmd, &p); err != nil {
				return err
			}
			if p.PackageManager == "" {
				return bErrors.New(bErrors.ErrCodeInvalidInput, "--package-manager is required")
			}

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if validate {
				if err := a.repo.Validate(ctx, p.GitURL); err != nil {
					return err
				}
			}
			if err := a.store.CreateProject(ctx, &p); err != nil {
				return err
			}
			c.Logger.Debug("project created", "project", p.ID, "owner", p.UserID)

			printSuccess("Created project %s", StyleHighlight.Render(fmt.Sprintf("#%d %s", p.ID, p.Name)))
			printNextStep("Start a scan", fmt.Sprintf("barista scan start %d", p.ID))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&validate, "validate", false, "check that the repository is reachable first")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("git-url")
	return cmd
}

// projectUpdateCommand creates the "project update" subcommand.
func (c *CLI) projectUpdateCommand() *cobra.Command {
	var (
		flags projectFlags
		admin bool
	)

	cmd := &cobra.Command{
		Use:   "update <project>",
		Short: "Change project fields",
		Long: `Change the fields given as flags and keep the others.

Changing the owner requires --admin.`,
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

			p, err := a.store.GetProject(ctx, id)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, p); err != nil {
				return err
			}
			if err := a.store.UpdateProject(ctx, p, store.UpdateOptions{AdminOverride: admin}); err != nil {
				return err
			}
			printSuccess("Updated project %s", StyleHighlight.Render(fmt.Sprintf("#%d %s", p.ID, p.Name)))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&admin, "admin", false, "allow changing the owner")
	return cmd
}

// projectListCommand creates the "project list" subcommand.
func (c *CLI) projectListCommand() *cobra.Command {
	var (
		owners          string
		developmentType string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			projects, err := a.store.ListProjects(ctx, store.Filter{
				OwnerIDs:        store.ParseOwnerIDs(owners),
				DevelopmentType: developmentType,
			})
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				printInfo("No projects")
				return nil
			}
			printTable([]string{"ID", "Name", "Manager", "Owner", "Type", "Repository"}, projectRows(projects))
			return nil
		},
	}

	cmd.Flags().StringVar(&owners, "owner", "", "comma-separated owner ids")
	cmd.Flags().StringVar(&developmentType, "development-type", "", "organization or community")
	return cmd
}

func projectRows(projects []model.Project) [][]string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			p.Name,
			string(p.PackageManager),
			p.UserID,
			p.DevelopmentType,
			repo.Redact(p.GitURL),
		})
	}
	return rows
}

// projectShowCommand creates the "project show" subcommand.
func (c *CLI) projectShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project>",
		Short: "Show a project",
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

			p, err := a.store.GetProject(ctx, id)
			if err != nil {
				return err
			}
			printProject(p)
			return nil
		},
	}
}

func printProject(p *model.Project) {
	fmt.Println(StyleTitle.Render(p.Name))
	printKeyValue("ID", strconv.FormatInt(p.ID, 10))
	printKeyValue("Repository", repo.Redact(p.GitURL))
	printKeyValue("Manager", string(p.PackageManager))
	printKeyValue("Owner", p.UserID)
	printKeyValue("Type", p.DevelopmentType)
	if p.DeploymentType != "" {
		printKeyValue("Deployment", p.DeploymentType)
	}
	if p.OutputFormat != "" {
		printKeyValue("Format", p.OutputFormat)
	}
	printKeyValue("Created", formatTime(&p.CreatedAt))
	printKeyValue("Updated", formatTime(&p.UpdatedAt))
}

// projectBranchesCommand creates the "project branches" subcommand.
func (c *CLI) projectBranchesCommand() *cobra.Command {
	var tags bool

	cmd := &cobra.Command{
		Use:   "branches <project>",
		Short: "List the branches of a project's repository",
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

			spinner := newSpinner(ctx, "Listing remote refs...")
			spinner.Start()
			refs, err := a.runner.Refs(ctx, id)
			spinner.Stop()
			if err != nil {
				return err
			}

			for _, r := range refs {
				if r.Kind == repo.RefTag && !tags {
					continue
				}
				fmt.Printf("%s %s\n", r.Name, StyleDim.Render(shortCommit(r.Commit)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&tags, "tags", false, "include tags")
	return cmd
}

func shortCommit(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

// projectValidateCommand creates the "project validate" subcommand.
func (c *CLI) projectValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <git-url>",
		Short: "Check that a repository URL is well formed and reachable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			git := repo.NewGit(nil, repo.FromConfig(cfg.Credentials), c.Logger)
			if err := git.Validate(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Repository %s is reachable", repo.Redact(args[0]))
			return nil
		},
	}
}
