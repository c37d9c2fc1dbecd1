package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/cohort/internal/config"
	"github.com/roach88/cohort/internal/engine"
	"github.com/roach88/cohort/internal/logger"
	"github.com/roach88/cohort/internal/metrics"
	"github.com/roach88/cohort/internal/report"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigFile  string
	EnvFile     string
	DataDir     string
	Engine      string
	MetricsFile string

	// Environ replaces the process environment when set (for testing).
	Environ []string

	// Clock and IDs override report timestamps, report IDs and export
	// file names (for testing).
	Clock clockwork.Clock
	IDs   report.IDGenerator

	registry *prometheus.Registry
	recorder *metrics.Recorder
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cohort CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cohort",
		Short: "cohort - build participant cohorts from flat study files",
		Long: `Query a directory of study data files (CSV or Parquet) as one dataset.

The directory is scanned for a demographics table and any number of
behavioral tables. Cross-sectional or longitudinal structure is detected
from the demographics columns, and every table is joined on the detected
merge key. Filters and selections are compiled to parameterized SQL over
whitelisted identifiers only.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with COHORT_* settings (skipped when missing)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory holding the study data files")
	cmd.PersistentFlags().StringVar(&opts.Engine, "engine", "", "query engine (sqlite|duckdb)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewDetectCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewParamsCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors not already rendered by a command are written to stderr. The
// metrics file is written even when the command fails.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if mErr := opts.writeMetrics(); mErr != nil {
		fmt.Fprintf(stderr, "Error: %v\n", mErr)
		if err == nil {
			err = mErr
		}
	}
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCommandError
	}
	return exitErr.Code
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return logger.New(cmd.ErrOrStderr(), o.Verbose)
}

// loadConfig layers defaults, the config file, the env file, COHORT_*
// variables and finally the flags.
func (o *RootOptions) loadConfig() (config.Config, error) {
	overrides := map[string]string{}
	if o.DataDir != "" {
		overrides["data_dir"] = o.DataDir
	}
	if o.Engine != "" {
		overrides["engine"] = o.Engine
	}
	return config.Load(config.Sources{
		File:      o.ConfigFile,
		EnvFile:   o.EnvFile,
		Environ:   o.Environ,
		Overrides: overrides,
	})
}

func (o *RootOptions) metrics() *metrics.Recorder {
	if o.recorder == nil {
		o.registry = prometheus.NewRegistry()
		o.recorder = metrics.NewRecorder(o.registry)
	}
	return o.recorder
}

func (o *RootOptions) writeMetrics() error {
	if o.MetricsFile == "" || o.registry == nil {
		return nil
	}
	if err := metrics.WriteTextfile(o.MetricsFile, o.registry); err != nil {
		return WrapExitError(ExitCommandError, "failed to write metrics", err)
	}
	return nil
}

// openEngine loads the configuration and opens the dataset it names.
func (o *RootOptions) openEngine(ctx context.Context, cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithLogger(o.logger(cmd)),
		engine.WithMetrics(o.metrics()),
	}
	if o.Clock != nil {
		opts = append(opts, engine.WithClock(o.Clock))
	}
	if o.IDs != nil {
		opts = append(opts, engine.WithIDGenerator(o.IDs))
	}
	return engine.Open(ctx, cfg, opts...)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
