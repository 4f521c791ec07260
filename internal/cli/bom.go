package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Tim-sandbox/barista/pkg/model"
	"github.com/Tim-sandbox/barista/pkg/sbom"
)

// bomCommand creates the "bom" command.
func (c *CLI) bomCommand() *cobra.Command {
	var (
		security     bool
		licensesOnly bool
		exportFormat string
		output       string
		scanID       string
		q            model.BOMQuery
	)

	cmd := &cobra.Command{
		Use:   "bom <project>",
		Short: "List or export the bill of materials of a project",
		Long: `List the license findings of a project's latest completed scan, or its
security findings with --security, one page at a time.

With --export the full bill of materials is written as a CycloneDX or SPDX
document instead.`,
		Example: `  barista bom 3 --filter lodash
  barista bom 3 --security
  barista bom 3 --export spdx -o web.spdx.json`,
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

			if _, err := a.store.GetProject(ctx, id); err != nil {
				return err
			}

			if cmd.Flags().Changed("export") {
				format, err := sbom.ParseFormat(exportFormat)
				if err != nil {
					return err
				}
				var in *sbom.Input
				if scanID != "" {
					in, err = sbom.LoadProjectScan(ctx, a.store, id, scanID)
				} else {
					in, err = sbom.Load(ctx, a.store, id)
				}
				if err != nil {
					return err
				}
				return writeExport(output, format, in)
			}

			switch {
			case security:
				page, err := a.agg.SecurityBOM(ctx, id, q)
				if err != nil {
					return err
				}
				printTable([]string{"Package", "Severity", "Advisory", "Path"}, securityRows(page.Data))
				printPageFooter(page.Count, page.Total, page.Page, page.PageCount)
			case licensesOnly:
				page, err := a.agg.LicensesOnly(ctx, id, q)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(page.Data))
				for _, s := range page.Data {
					rows = append(rows, []string{s.License, licenseStyle(s.Status).Render(s.Status.String()), strconv.Itoa(s.Packages)})
				}
				printTable([]string{"License", "Status", "Packages"}, rows)
				printPageFooter(page.Count, page.Total, page.Page, page.PageCount)
			default:
				page, err := a.agg.LicenseBOM(ctx, id, q)
				if err != nil {
					return err
				}
				printTable([]string{"Package", "License", "Status"}, licenseRows(page.Data))
				printPageFooter(page.Count, page.Total, page.Page, page.PageCount)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&security, "security", false, "list security findings")
	cmd.Flags().BoolVar(&licensesOnly, "licenses-only", false, "list distinct licenses with package counts")
	cmd.Flags().StringVar(&q.FilterText, "filter", "", "case-insensitive substring filter")
	cmd.Flags().StringVar(&q.License, "license", "", "only packages under this license")
	cmd.Flags().IntVar(&q.Page, "page", 0, "zero-based page number")
	cmd.Flags().IntVar(&q.PageSize, "page-size", model.DefaultPageSize, "rows per page")
	cmd.Flags().StringVar(&exportFormat, "export", "", "export format (cyclonedx, cyclonedx-xml, spdx)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "export file (default: stdout)")
	cmd.Flags().StringVar(&scanID, "scan", "", "export this completed scan instead of the latest")
	cmd.MarkFlagsMutuallyExclusive("security", "licenses-only")
	return cmd
}

func writeExport(path string, format sbom.Format, in *sbom.Input) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	if err := sbom.Write(w, format, in); err != nil {
		return err
	}
	if path != "" {
		printSuccess("Exported %s bill of materials", format)
		printFile(path)
	}
	return nil
}

func licenseRows(items []model.LicenseItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{it.DisplayIdentifier, it.License, licenseStyle(it.Status).Render(it.Status.String())})
	}
	return rows
}

func securityRows(items []model.SecurityItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			it.DisplayIdentifier,
			severityStyle(it.Severity).Render(it.Severity.String()),
			it.VulnerabilityID,
			it.Path,
		})
	}
	return rows
}

func printPageFooter(count, total, page, pageCount int) {
	if pageCount == 0 {
		printDetail("No findings")
		return
	}
	printDetail("%d of %d rows, page %d/%d", count, total, page+1, pageCount)
}
