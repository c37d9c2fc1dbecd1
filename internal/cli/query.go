package cli

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/engine"
	"github.com/roach88/cohort/internal/querysql"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Request RequestOptions
	Run     bool
	Preview int
}

// QueryResult is the output of the query command.
type QueryResult struct {
	Filters  string             `json:"filters"`
	Base     querysql.Fragment  `json:"base"`
	Count    querysql.Fragment  `json:"count"`
	Data     *querysql.Fragment `json:"data,omitempty"`
	Warnings []querysql.Warning `json:"warnings,omitempty"`

	// Set with --run.
	Participants *int64           `json:"participants,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Build (and optionally run) the SQL for a cohort",
		Long: `Build the parameterized SQL for a cohort and print it.

Filters come from a TOML parameter file (--params), from flags, or both.
Tables, columns and filters that fail validation are dropped and listed
as warnings instead of failing the query.

Example:
  cohort query --age-min 18 --age-max 65 --substudy Discovery
  cohort query --params cohort.toml --run
  cohort query --range cognitive.score=90:120 --in cognitive.group=A,B --run --preview 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	addRequestFlags(cmd, &opts.Request)
	cmd.Flags().BoolVar(&opts.Run, "run", false, "execute the count query")
	cmd.Flags().IntVar(&opts.Preview, "preview", 0, "with --run, also fetch this many data rows")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
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

	plan := eng.Plan(req)
	res := QueryResult{
		Filters:  engine.Describe(req),
		Base:     plan.Base,
		Count:    plan.Count,
		Warnings: eng.Validate(req),
	}
	if !plan.Data.IsZero() {
		res.Data = &plan.Data
	}
	for _, w := range res.Warnings {
		formatter.VerboseLog("dropped %s: %s", w.Subject, w.Message)
	}

	var preview *dataset.Table
	if opts.Run {
		n, _, err := eng.Count(ctx, req)
		if err != nil {
			return formatter.Fail("count failed", err)
		}
		res.Participants = &n

		if opts.Preview > 0 && res.Data != nil {
			t, _, err := eng.Data(ctx, req)
			if err != nil {
				return formatter.Fail("data query failed", err)
			}
			preview = head(t, opts.Preview)
			res.Rows = preview.Records()
		}
	}

	if formatter.JSON() {
		return formatter.Success(res)
	}
	writeQuery(formatter.Writer, res, preview)
	return nil
}

func writeQuery(w io.Writer, res QueryResult, preview *dataset.Table) {
	fmt.Fprintf(w, "Filters: %s\n\n", res.Filters)
	fmt.Fprintf(w, "Count SQL:\n  %s\n", res.Count.SQL)
	fmt.Fprintf(w, "Params: %v\n", res.Count.Params)
	if res.Data != nil {
		fmt.Fprintf(w, "\nData SQL:\n  %s\n", res.Data.SQL)
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "  - %s\n", warn)
		}
	}
	if res.Participants != nil {
		fmt.Fprintf(w, "\nParticipants: %d\n", *res.Participants)
	}
	if preview != nil {
		fmt.Fprintln(w)
		writeRows(w, preview)
	}
}

func head(t *dataset.Table, n int) *dataset.Table {
	out := t.Clone()
	if out.Len() > n {
		out.Rows = out.Rows[:n]
	}
	return out
}

func writeRows(w io.Writer, t *dataset.Table) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.Columns)
	tw.SetAutoFormatHeaders(false)
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = dataset.Format(v)
		}
		tw.Append(cells)
	}
	tw.Render()
}
