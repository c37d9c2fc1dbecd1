package engine

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/cohort/internal/catalog"
	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/export"
	"github.com/roach88/cohort/internal/filter"
	"github.com/roach88/cohort/internal/ident"
	"github.com/roach88/cohort/internal/params"
	"github.com/roach88/cohort/internal/querysql"
	"github.com/roach88/cohort/internal/report"
	"github.com/roach88/cohort/internal/source"
	"github.com/roach88/cohort/internal/store"
)

// Request describes a cohort: the filters, the tables to join and the
// columns to return.
type Request struct {
	Filters filter.Set
	Tables  []string

	// Selections pick columns per table. A table listed in Tables without
	// a selection contributes all of its non-id columns.
	Selections []querysql.ColumnSelection
}

// RequestFromParams converts an imported parameter file.
func RequestFromParams(p params.Params) Request {
	tables := append([]string(nil), p.Tables...)
	seen := map[string]bool{}
	for _, t := range tables {
		seen[t] = true
	}
	for t := range p.Columns {
		if !seen[t] {
			tables = append(tables, t)
			seen[t] = true
		}
	}
	sort.Strings(tables[len(p.Tables):])
	return Request{
		Filters:    p.Filters,
		Tables:     tables,
		Selections: querysql.SelectionsFromMap(p.Columns),
	}
}

// Plan is the SQL a request turns into.
type Plan struct {
	Base  querysql.Fragment `json:"base"`
	Count querysql.Fragment `json:"count"`

	// Data is zero when nothing would be selected.
	Data querysql.Fragment `json:"data"`

	Warnings []querysql.Warning `json:"warnings,omitempty"`
}

// Plan builds every fragment for req without executing anything.
func (e *Engine) Plan(req Request) Plan {
	keys := e.Keys()
	base := e.builder.Base(keys, req.Filters.Demographic, req.Filters.Behavioral, req.Tables)
	p := Plan{
		Base:     base,
		Count:    querysql.Count(base, keys),
		Warnings: base.Warnings,
	}
	if data, ok := e.builder.Data(base, e.selections(req)); ok {
		p.Data = data
		p.Warnings = data.Warnings
	}
	return p
}

// Validate lists what the builder would drop or rename for req, plus
// filter values that are empty.
func (e *Engine) Validate(req Request) []querysql.Warning {
	keys := e.Keys()
	all := e.builder.Validate(keys, req.Filters, req.Tables)
	all = append(all, e.builder.ValidateRequest(keys, req.Filters, e.selections(req))...)

	seen := map[querysql.Warning]bool{}
	subjects := map[string]bool{}
	out := all[:0]
	for _, w := range all {
		if !seen[w] {
			seen[w] = true
			subjects[w.Subject] = true
			out = append(out, w)
		}
	}

	// Shape problems the builder already reported keep the builder's wording.
	for _, p := range filter.Validate(req.Filters).Problems {
		if !subjects[p.Subject] {
			out = append(out, querysql.Warning{Kind: dataset.ValidationError, Subject: p.Subject, Message: p.Message})
		}
	}
	return out
}

// Count returns the number of distinct participants matching req.
func (e *Engine) Count(ctx context.Context, req Request) (int64, Plan, error) {
	p := e.Plan(req)
	n, err := e.exec.Count(ctx, p.Count)
	return n, p, err
}

// Data returns the merged rows matching req.
func (e *Engine) Data(ctx context.Context, req Request) (*dataset.Table, Plan, error) {
	p := e.Plan(req)
	if p.Data.IsZero() {
		return nil, p, dataset.NewValidationError("query data", "no columns selected", nil)
	}
	t, err := e.exec.Query(ctx, p.Data)
	return t, p, err
}

// Report counts the cohort after each filter in canonical order.
func (e *Engine) Report(ctx context.Context, req Request) report.Summary {
	return e.reports().Generate(ctx, e.reportRequest(req))
}

// Impact counts each filter on its own against the unfiltered baseline.
func (e *Engine) Impact(ctx context.Context, req Request) (report.ImpactAnalysis, error) {
	return e.reports().AnalyzeImpact(ctx, e.reportRequest(req))
}

func (e *Engine) reportRequest(req Request) report.Request {
	return report.Request{Keys: e.Keys(), Filters: req.Filters, Tables: req.Tables}
}

// ExportRequest is a Request plus how to shape and where to write it.
type ExportRequest struct {
	Request
	Options export.Options

	// Path is the output file. When empty a name is generated with
	// export.Filename inside Dir.
	Path string
	Dir  string

	// Format is used for generated names. Defaults to CSV.
	Format source.Format
}

// ExportResult describes a written export.
type ExportResult struct {
	Path     string             `json:"path"`
	Rows     int                `json:"rows"`
	Columns  int                `json:"columns"`
	Messages []string           `json:"messages,omitempty"`
	Warnings []querysql.Warning `json:"warnings,omitempty"`
}

// Export runs the data query, prepares the result and writes it.
func (e *Engine) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	t, plan, err := e.Data(ctx, req.Request)
	if err != nil {
		return ExportResult{}, err
	}

	keys := e.sqlKeys()
	prepared, messages, err := export.Prepare(t, keys, req.Options, e.log)
	if err != nil {
		return ExportResult{Messages: messages, Warnings: plan.Warnings}, err
	}

	path := req.Path
	if path == "" {
		ext := ".csv"
		if req.Format == source.FormatParquet {
			ext = ".parquet"
		}
		name := export.Filename(plan.Base.Tables, e.catalog.PrimaryTable, req.Options.Wide && keys.IsLongitudinal, ext, e.clock)
		path = filepath.Join(req.Dir, name)
	}
	if err := export.WriteFile(path, prepared); err != nil {
		return ExportResult{}, err
	}

	e.log.Info("exported cohort", "path", path, "rows", prepared.Len(), "columns", len(prepared.Columns))
	return ExportResult{
		Path:     path,
		Rows:     prepared.Len(),
		Columns:  len(prepared.Columns),
		Messages: messages,
		Warnings: plan.Warnings,
	}, nil
}

// Profile reads one table and summarizes its columns. Column names are
// the SQL names used in queries.
func (e *Engine) Profile(table string) ([]catalog.ColumnProfile, error) {
	t, err := e.readTable(table)
	if err != nil {
		return nil, err
	}
	return catalog.Profile(t), nil
}

// Sessions returns the distinct session values of the primary table, or
// nil for cross-sectional data.
func (e *Engine) Sessions() ([]string, error) {
	keys := e.Keys()
	if !keys.IsLongitudinal {
		return nil, nil
	}
	t, err := e.readTable(e.catalog.PrimaryTable)
	if err != nil {
		return nil, err
	}
	return catalog.SessionValues(t, ident.Sanitize(keys.SessionID)), nil
}

func (e *Engine) readTable(table string) (*dataset.Table, error) {
	info, ok := e.catalog.Table(table)
	if !ok {
		return nil, dataset.NewSecurityRejection("read table", table)
	}
	t, err := source.ReadTable(info.Path)
	if err != nil {
		return nil, err
	}
	t.Columns = ident.Columns(t.Columns)
	store.PrepareMergeColumn(t, e.Keys(), info.Name, e.log)
	return t, nil
}

// sqlKeys returns the merge keys renamed to the SQL column names the data
// query produces.
func (e *Engine) sqlKeys() dataset.MergeKeys {
	k := e.Keys()
	k.PrimaryID = ident.Sanitize(k.PrimaryID)
	if k.SessionID != "" {
		k.SessionID = ident.Sanitize(k.SessionID)
	}
	if k.CompositeID != "" {
		k.CompositeID = ident.Sanitize(k.CompositeID)
	}
	return k
}

// selections fills in all non-id columns for requested tables without an
// explicit selection. Tables only reached through a filter contribute
// nothing.
func (e *Engine) selections(req Request) []querysql.ColumnSelection {
	out := append([]querysql.ColumnSelection(nil), req.Selections...)
	selected := map[string]bool{}
	for _, s := range req.Selections {
		selected[ident.Sanitize(s.Table)] = true
	}

	ids := map[string]bool{}
	k := e.sqlKeys()
	for _, c := range []string{k.PrimaryID, k.SessionID, k.CompositeID} {
		if c != "" {
			ids[c] = true
		}
	}

	cols := e.exec.Columns()
	for _, t := range req.Tables {
		name := ident.Sanitize(t)
		if selected[name] || name == e.catalog.PrimaryTable {
			continue
		}
		all, ok := cols[name]
		if !ok {
			continue
		}
		var pick []string
		for _, c := range all {
			if !ids[c] {
				pick = append(pick, c)
			}
		}
		if len(pick) > 0 {
			out = append(out, querysql.ColumnSelection{Table: name, Columns: pick})
			selected[name] = true
		}
	}
	return out
}

// Describe renders a one-line summary of req's filters.
func Describe(req Request) string {
	var parts []string
	d := req.Filters.Demographic
	if d.AgeRange != nil {
		parts = append(parts, filter.DescribeAge(*d.AgeRange))
	}
	if len(d.Sessions) > 0 {
		parts = append(parts, filter.DescribeSessions(d.Sessions))
	}
	if len(d.Substudies) > 0 {
		parts = append(parts, filter.DescribeSubstudies(d.Substudies))
	}
	for _, b := range req.Filters.Behavioral {
		parts = append(parts, filter.Describe(b))
	}
	if len(parts) == 0 {
		return "No filters"
	}
	return strings.Join(parts, "; ")
}
