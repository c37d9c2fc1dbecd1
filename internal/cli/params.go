package cli

import (
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/params"
)

// ParamsCheck is the output of params validate.
type ParamsCheck struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
	Filters  int      `json:"filters"`
	Tables   []string `json:"tables,omitempty"`
}

// NewParamsCommand creates the params command group.
func NewParamsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Create and check TOML query parameter files",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newParamsTemplateCommand(rootOpts))
	cmd.AddCommand(newParamsValidateCommand(rootOpts))
	cmd.AddCommand(newParamsSaveCommand(rootOpts))
	return cmd
}

func (o *RootOptions) clock() clockwork.Clock {
	if o.Clock != nil {
		return o.Clock
	}
	return clockwork.NewRealClock()
}

func newParamsTemplateCommand(rootOpts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print an example parameter file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			data, err := params.Template(rootOpts.clock())
			if err != nil {
				return formatter.Fail("failed to render template", err)
			}
			return writeParams(rootOpts, cmd, out, data)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func newParamsSaveCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		req   RequestOptions
		out   string
		notes string
		wide  bool
		base  bool
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Write the filters given as flags to a parameter file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			r, err := req.build(cmd)
			if err != nil {
				return formatter.Fail("invalid query", err)
			}
			p := params.Params{
				Metadata:            params.Metadata{UserNotes: notes},
				Filters:             r.Filters,
				Tables:              r.Tables,
				Columns:             map[string][]string{},
				Wide:                wide,
				ConsolidateBaseline: base,
			}
			if req.loaded != nil {
				p.Metadata.AppVersion = req.loaded.Metadata.AppVersion
			}
			for _, s := range r.Selections {
				p.Columns[s.Table] = s.Columns
			}
			data, err := params.Export(p, rootOpts.clock())
			if err != nil {
				return formatter.Fail("failed to encode parameters", err)
			}
			return writeParams(rootOpts, cmd, out, data)
		},
	}
	addRequestFlags(cmd, &req)
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVar(&notes, "notes", "", "free-text notes stored in the metadata")
	cmd.Flags().BoolVar(&wide, "wide", false, "request wide-format export")
	cmd.Flags().BoolVar(&base, "consolidate-baseline", false, "request baseline consolidation")
	return cmd
}

func newParamsValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a parameter file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParamsValidate(rootOpts, args[0], cmd)
		},
	}
}

func runParamsValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return formatter.Fail("failed to read parameters", dataset.NewDataAccessError("read query parameters", path, err))
	}
	p, problems, err := params.Import(data)
	if err != nil {
		return formatter.Fail("invalid parameter file", err)
	}

	check := ParamsCheck{
		File:     path,
		Valid:    len(problems) == 0,
		Problems: problems,
		Filters:  len(p.Filters.Behavioral),
		Tables:   p.Tables,
	}

	if !check.Valid {
		if formatter.JSON() {
			if err := formatter.Error(ErrCodeValidation, "parameter file has problems", check); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(formatter.Writer, "%s: %d problem(s)\n", path, len(problems))
			for _, pr := range problems {
				fmt.Fprintf(formatter.Writer, "  - %s\n", pr)
			}
		}
		return NewExitError(ExitFailure, "parameter file has problems")
	}

	if formatter.JSON() {
		return formatter.Success(check)
	}
	fmt.Fprintf(formatter.Writer, "%s: valid (%d behavioral filter(s), %d table(s))\n", path, check.Filters, len(check.Tables))
	return nil
}

func writeParams(opts *RootOptions, cmd *cobra.Command, out string, data []byte) error {
	formatter := opts.formatter(cmd)
	if out == "" {
		if formatter.JSON() {
			return formatter.Success(map[string]string{"toml": string(data)})
		}
		_, err := formatter.Writer.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return formatter.Fail("failed to write parameters", dataset.NewDataAccessError("write query parameters", out, err))
	}
	if formatter.JSON() {
		return formatter.Success(map[string]string{"path": out})
	}
	fmt.Fprintf(formatter.Writer, "Wrote %s\n", out)
	return nil
}
