package cli

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/export"
	"github.com/roach88/cohort/internal/report"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Request RequestOptions
	CSV     string
	Impact  bool
}

// ReportResult is the output of the report command.
type ReportResult struct {
	Summary report.Summary         `json:"summary"`
	Impact  *report.ImpactAnalysis `json:"impact,omitempty"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show how each filter narrows the cohort",
		Long: `Count participants after each filter is applied in turn (age, sessions,
substudies, then behavioral filters in order) and report how many each
step removed.

With --impact every filter is also counted on its own against the
unfiltered baseline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	addRequestFlags(cmd, &opts.Request)
	cmd.Flags().StringVar(&opts.CSV, "csv", "", "also write the report table to this CSV file")
	cmd.Flags().BoolVar(&opts.Impact, "impact", false, "include per-filter impact analysis")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	req, err := opts.Request.build(cmd)
	if err != nil {
		return formatter.Fail("invalid query", err)
	}

	eng, err := opts.openEngine(ctx, cmd)
	if err != nil {
		return formatter.Fail("failed to open dataset", err)
	}
	defer eng.Close()

	res := ReportResult{Summary: eng.Report(ctx, req)}
	if res.Summary.Error != "" && len(res.Summary.Steps) == 0 {
		return formatter.Fail("report failed", dataset.NewQueryError("generate report", fmt.Errorf("%s", res.Summary.Error)))
	}
	if opts.Impact {
		a, err := eng.Impact(ctx, req)
		if err != nil {
			return formatter.Fail("impact analysis failed", err)
		}
		res.Impact = &a
	}

	if opts.CSV != "" {
		if err := export.WriteFile(opts.CSV, res.Summary.Table()); err != nil {
			return formatter.Fail("failed to write report", err)
		}
		formatter.VerboseLog("wrote report to %s", opts.CSV)
	}

	if formatter.JSON() {
		return formatter.Success(res)
	}
	writeReport(formatter.Writer, res)
	return nil
}

func writeReport(w io.Writer, res ReportResult) {
	writeRows(w, res.Summary.Table())
	fmt.Fprintf(w, "\n%d -> %d participants (%d removed, %.2f%%)\n",
		res.Summary.InitialCount, res.Summary.FinalCount, res.Summary.TotalRemoved, res.Summary.TotalRemovalPct)
	for _, f := range res.Summary.Failures {
		fmt.Fprintf(w, "Skipped %s filter %q: %s\n", f.Kind, f.Description, f.Error)
	}

	if res.Impact == nil {
		return
	}
	fmt.Fprintf(w, "\nImpact against baseline of %d:\n", res.Impact.Baseline)
	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Filter", "Remaining", "Removed", "Removed %"})
	rows := append(append([]report.Impact(nil), res.Impact.Demographic...), res.Impact.Behavioral...)
	rows = append(rows, res.Impact.Combined)
	for _, i := range rows {
		tw.Append([]string{i.Name, fmt.Sprint(i.Remaining), fmt.Sprint(i.Removed), fmt.Sprintf("%.2f", i.RemovalPct)})
	}
	tw.Render()
}
