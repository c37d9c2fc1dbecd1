package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/roach88/cohort/internal/config"
	"github.com/roach88/cohort/internal/engine"
	"github.com/roach88/cohort/internal/export"
	"github.com/roach88/cohort/internal/filter"
	"github.com/roach88/cohort/internal/params"
	"github.com/roach88/cohort/internal/querysql"
	"github.com/roach88/cohort/internal/source"
)

// ScenarioTime is the fixed clock every scenario runs at.
var ScenarioTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// ReportID is the fixed report id every scenario gets.
const ReportID = "scenario-report"

type fixedID string

func (f fixedID) Generate() string { return string(f) }

// Run executes a scenario in workDir, which must be empty, and returns the
// result.
//
// An error means the scenario could not run at all (bad request, files
// that cannot be written, a dataset that does not open). Assertion
// failures are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, workDir string) (*Result, error) {
	dataDir := filepath.Join(workDir, "data")
	outDir := filepath.Join(workDir, "out")
	for _, d := range []string{dataDir, outDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	for name, content := range scenario.Tables {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write table %s: %w", name, err)
		}
	}

	cfg := config.Default()
	for k, v := range scenario.Config {
		if err := cfg.Set(k, v); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	cfg.DataDir = dataDir

	req, opts, err := buildRequest(scenario.Request)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	eng, err := engine.Open(ctx, cfg,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithClock(clockwork.NewFakeClockAt(ScenarioTime)),
		engine.WithIDGenerator(fixedID(ReportID)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer eng.Close()

	obs := Observation{Keys: eng.Keys()}
	obs.Count, obs.Plan, err = eng.Count(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}
	obs.Report = eng.Report(ctx, req)

	if !obs.Plan.Data.IsZero() {
		obs.Data, _, err = eng.Data(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("data query failed: %w", err)
		}
	}

	if scenario.wantsExport() {
		res, err := eng.Export(ctx, engine.ExportRequest{
			Request: req,
			Options: opts,
			Path:    filepath.Join(outDir, "cohort.csv"),
		})
		if err != nil {
			obs.ExportError = err
		} else if obs.Export, err = source.ReadTable(res.Path); err != nil {
			return nil, fmt.Errorf("failed to read export: %w", err)
		}
	}

	result := NewResult()
	result.Observation = obs
	for i, a := range scenario.Assertions {
		if err := check(a, obs); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func (s *Scenario) wantsExport() bool {
	for _, a := range s.Assertions {
		if a.Type == AssertExport {
			return true
		}
	}
	return false
}

// buildRequest turns a RequestSpec into an engine request and the export
// options it asks for.
func buildRequest(spec RequestSpec) (engine.Request, export.Options, error) {
	var req engine.Request
	opts := export.DefaultOptions()

	if spec.Params != "" {
		p, problems, err := params.Import([]byte(spec.Params))
		if err != nil {
			return req, opts, err
		}
		if len(problems) > 0 {
			return req, opts, fmt.Errorf("params: %v", problems)
		}
		req = engine.RequestFromParams(p)
		opts.Wide = p.Wide
		opts.ConsolidateBaseline = p.ConsolidateBaseline
	}

	if r := spec.AgeRange; len(r) == 2 {
		age := filter.NumericRange{Min: r[0], Max: r[1]}
		if err := filter.CheckAge(age); err != nil {
			return req, opts, err
		}
		req.Filters.Demographic.AgeRange = &age
	}
	req.Filters.Demographic.Sessions = append(req.Filters.Demographic.Sessions, spec.Sessions...)
	req.Filters.Demographic.Substudies = append(req.Filters.Demographic.Substudies, spec.Substudies...)

	// Filters are not shape-checked here so scenarios can exercise the
	// builder dropping them.
	for _, f := range spec.Filters {
		b := filter.Behavioral{Table: f.Table, Column: f.Column}
		switch f.Type {
		case "range":
			var bounds [2]float64
			for i := 0; i < len(f.Value) && i < 2; i++ {
				switch n := f.Value[i].(type) {
				case int:
					bounds[i] = float64(n)
				case float64:
					bounds[i] = n
				}
			}
			b.Criterion = filter.Range{Min: bounds[0], Max: bounds[1]}
		case "categorical":
			b.Criterion = filter.Categorical{Values: f.Value}
		default:
			return req, opts, fmt.Errorf("filter %s.%s: unknown type %q", f.Table, f.Column, f.Type)
		}
		req.Filters.Behavioral = append(req.Filters.Behavioral, b)
	}

	req.Tables = append(req.Tables, spec.Tables...)
	req.Selections = append(req.Selections, querysql.SelectionsFromMap(spec.Columns)...)
	opts.Wide = opts.Wide || spec.Wide
	opts.ConsolidateBaseline = opts.ConsolidateBaseline || spec.ConsolidateBaseline
	return req, opts, nil
}
