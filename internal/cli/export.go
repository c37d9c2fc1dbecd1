package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/engine"
	"github.com/roach88/cohort/internal/export"
	"github.com/roach88/cohort/internal/source"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Request             RequestOptions
	Out                 string
	Dir                 string
	Parquet             bool
	Wide                bool
	ConsolidateBaseline bool
	KeepEmpty           bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the merged cohort data to CSV or Parquet",
		Long: `Run the data query for a cohort and write the merged rows to a file.

Before writing, all-empty columns are dropped, longitudinal data is
optionally pivoted to one row per participant (--wide), and rows are
sorted by participant id. Without --out a file name is generated from the
selected tables and the current time.

Example:
  cohort export --params cohort.toml --wide --dir exports
  cohort export --table cognitive --age-min 18 --age-max 65 --out cohort.parquet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	addRequestFlags(cmd, &opts.Request)
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (.csv or .parquet)")
	cmd.Flags().StringVar(&opts.Dir, "dir", ".", "directory for generated file names")
	cmd.Flags().BoolVar(&opts.Parquet, "parquet", false, "write Parquet when the file name is generated")
	cmd.Flags().BoolVar(&opts.Wide, "wide", false, "pivot longitudinal data to one row per participant")
	cmd.Flags().BoolVar(&opts.ConsolidateBaseline, "consolidate-baseline", false, "with --wide, merge baseline sessions into one set of columns")
	cmd.Flags().BoolVar(&opts.KeepEmpty, "keep-empty", false, "keep columns that are empty in every row")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	req, err := opts.Request.build(cmd)
	if err != nil {
		return formatter.Fail("invalid query", err)
	}
	if opts.ConsolidateBaseline && !opts.Wide && (opts.Request.loaded == nil || !opts.Request.loaded.Wide) {
		return formatter.Fail("invalid options", dataset.NewValidationError("parse flags", "--consolidate-baseline requires --wide", nil))
	}

	eng, err := opts.openEngine(ctx, cmd)
	if err != nil {
		return formatter.Fail("failed to open dataset", err)
	}
	defer eng.Close()

	exportOpts := export.DefaultOptions()
	exportOpts.DropEmptyColumns = !opts.KeepEmpty
	exportOpts.Wide = opts.Wide
	exportOpts.ConsolidateBaseline = opts.ConsolidateBaseline
	if p := opts.Request.loaded; p != nil {
		exportOpts.Wide = exportOpts.Wide || p.Wide
		exportOpts.ConsolidateBaseline = exportOpts.ConsolidateBaseline || p.ConsolidateBaseline
	}

	format := source.FormatCSV
	if opts.Parquet {
		format = source.FormatParquet
	}
	res, err := eng.Export(ctx, engine.ExportRequest{
		Request: req,
		Options: exportOpts,
		Path:    opts.Out,
		Dir:     opts.Dir,
		Format:  format,
	})
	if err != nil {
		return formatter.Fail("export failed", err)
	}

	if formatter.JSON() {
		return formatter.Success(res)
	}
	writeExport(formatter.Writer, res)
	return nil
}

func writeExport(w io.Writer, res engine.ExportResult) {
	for _, m := range res.Messages {
		fmt.Fprintln(w, m)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "Dropped: %s\n", warn)
	}
	fmt.Fprintf(w, "Wrote %d rows x %d columns to %s\n", res.Rows, res.Columns, res.Path)
}
