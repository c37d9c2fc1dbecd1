// Package querysql builds parameterized SQL fragments for cohort queries.
//
// The builder never executes anything. It turns merge keys, filter specs and
// requested tables into a Fragment: SQL text with "?" placeholders plus the
// ordered parameter list. Executors (see the store package) bind the params.
//
// CRITICAL: filter values are NEVER interpolated into SQL text.
// CRITICAL: table and column names reach SQL only via ident.Identifier.
package querysql

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/filter"
	"github.com/roach88/cohort/internal/ident"
	"github.com/roach88/cohort/internal/logger"
	"github.com/roach88/cohort/internal/metrics"
)

// Fragment is a piece of parameterized SQL.
//
// Every "?" in SQL has exactly one entry in Params, in left-to-right order.
type Fragment struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`

	// Tables lists the whitelisted tables joined by a base fragment,
	// excluding the primary table.
	Tables []string `json:"tables,omitempty"`

	// Warnings lists every table, column or filter that was dropped.
	Warnings []Warning `json:"warnings,omitempty"`
}

// IsZero reports whether f holds no SQL.
func (f Fragment) IsZero() bool {
	return f.SQL == ""
}

// Warning describes something the builder skipped instead of failing.
type Warning struct {
	Kind    dataset.ErrorKind `json:"kind"`
	Subject string            `json:"subject"`
	Message string            `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s: %s", w.Kind, w.Subject, w.Message)
}

// Builder builds query fragments against one dataset.
type Builder struct {
	// PrimaryTable is the demographics table every query starts from.
	PrimaryTable string

	// AgeColumn is the primary-table column age ranges apply to.
	AgeColumn string

	// StudySiteColumn is the primary-table column substudies match against.
	// Empty disables substudy filtering.
	StudySiteColumn string

	// PrimaryColumns lists the primary table's columns for Data.
	PrimaryColumns []string

	// TableColumns optionally restricts the columns each table may expose.
	// Tables missing from the map accept any sanitized column name.
	TableColumns map[string][]string

	// Whitelist is the set of tables a query may join.
	Whitelist ident.Whitelist

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// ColumnSelection names the columns to select from one table.
type ColumnSelection struct {
	Table   string
	Columns []string
}

// build carries the per-call state of Base.
type build struct {
	b        *Builder
	warnings []Warning
}

func (st *build) warn(kind dataset.ErrorKind, subject, format string, args ...any) {
	w := Warning{Kind: kind, Subject: subject, Message: fmt.Sprintf(format, args...)}
	st.warnings = append(st.warnings, w)
	st.b.logger().Warn("query builder dropped input", "kind", string(kind), "subject", subject, "reason", w.Message)
}

func (b *Builder) logger() *slog.Logger {
	return logger.OrDefault(b.Logger)
}

func (b *Builder) primary() ident.Identifier {
	return ident.Safe(b.PrimaryTable)
}

func demoAlias() ident.Identifier {
	return ident.Demo()
}

// Base builds the shared FROM / JOIN / WHERE fragment.
//
// The primary table is always present, aliased "demo". Requested tables and
// tables referenced by behavioral filters are left-joined on the merge
// column after passing the whitelist. Predicates are emitted in a fixed
// order: age, sessions, substudies, then behavioral filters in input order.
//
// Base never fails. Rejected tables and malformed filters are dropped and
// reported in Fragment.Warnings.
func (b *Builder) Base(keys dataset.MergeKeys, demo filter.Demographic, behavioral []filter.Behavioral, tables []string) Fragment {
	st := &build{b: b}
	primary := b.primary()
	alias := demoAlias()
	merge := ident.Safe(keys.MergeColumn())

	w := &writer{}
	w.tok(tokFrom).ident(primary).tok(tokAs).ident(alias)

	// Joins: requested tables first, then filter tables that pass their checks.
	joined := []string{}
	seen := map[string]bool{primary.String(): true}
	join := func(member string) {
		if seen[member] {
			return
		}
		seen[member] = true
		joined = append(joined, member)
		t := ident.Safe(member)
		a := ident.TableAlias(member, primary.String())
		w.tok(tokLeftJoin).ident(t).tok(tokAs).ident(a).
			tok(tokOn).column(alias, merge).tok(tokEquals).column(a, merge)
	}

	for _, name := range tables {
		member, ok := ident.ValidateTable(name, b.Whitelist)
		if !ok {
			if ident.Sanitize(name) == primary.String() {
				continue
			}
			b.Metrics.RejectIdentifier("table")
			st.warn(dataset.SecurityRejection, name, "table is not in the whitelist")
			continue
		}
		join(member)
	}

	var predicates []*writer
	predicates = append(predicates, st.demographic(keys, demo)...)

	for i, f := range behavioral {
		pred, member, ok := st.behavioral(i, f, primary.String())
		if !ok {
			continue
		}
		if member != "" {
			join(member)
		}
		predicates = append(predicates, pred)
	}

	if len(predicates) > 0 {
		w.tok(tokWhere)
		for i, p := range predicates {
			if i > 0 {
				w.tok(tokAnd)
			}
			w.append(p)
		}
	}

	frag := Fragment{
		SQL:      w.String(),
		Params:   w.Params(),
		Tables:   joined,
		Warnings: st.warnings,
	}
	b.logger().Debug("built base fragment", "sql", frag.SQL, "params", len(frag.Params), "warnings", len(frag.Warnings))
	return frag
}

// demographic builds the age, session and substudy predicates.
func (st *build) demographic(keys dataset.MergeKeys, demo filter.Demographic) []*writer {
	var out []*writer
	alias := demoAlias()

	if demo.AgeRange != nil {
		switch {
		case st.b.AgeColumn == "":
			st.warn(dataset.ConfigurationError, "age", "no age column configured")
			st.b.Metrics.DropFilter("unconfigured")
		default:
			if err := filter.CheckAge(*demo.AgeRange); err != nil {
				st.warn(dataset.ValidationError, "age", "%v", err)
				st.b.Metrics.DropFilter("invalid_shape")
				break
			}
			p := &writer{}
			p.column(alias, ident.Safe(st.b.AgeColumn)).tok(tokBetween).
				bind(numberParam(demo.AgeRange.Min), numberParam(demo.AgeRange.Max))
			out = append(out, p)
		}
	}

	if len(demo.Sessions) > 0 {
		if keys.IsLongitudinal && keys.SessionID != "" {
			values := make([]any, len(demo.Sessions))
			for i, s := range demo.Sessions {
				values[i] = s
			}
			p := &writer{}
			p.column(alias, ident.Safe(keys.SessionID)).tok(tokIn).bindList(values)
			out = append(out, p)
		} else {
			st.b.logger().Debug("ignoring session filter on cross-sectional dataset", "sessions", demo.Sessions)
		}
	}

	if len(demo.Substudies) > 0 {
		if st.b.StudySiteColumn != "" {
			site := ident.Safe(st.b.StudySiteColumn)
			p := &writer{}
			p.tok(tokOpen)
			for i, s := range demo.Substudies {
				if i > 0 {
					p.tok(tokOr)
				}
				p.column(alias, site).tok(tokLike).bind(containsPattern(s))
			}
			p.tok(tokClose)
			out = append(out, p)
		} else {
			st.b.logger().Debug("ignoring substudy filter without study site column", "substudies", demo.Substudies)
		}
	}

	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern returns a LIKE pattern matching s anywhere in the value.
// Wildcards in s match literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// behavioral builds one behavioral predicate. member is the whitelisted
// table to join, or "" when the filter targets the primary table.
func (st *build) behavioral(i int, f filter.Behavioral, primary string) (pred *writer, member string, ok bool) {
	subject := fmt.Sprintf("%s.%s", f.Table, f.Column)

	if err := filter.Check(f); err != nil {
		st.warn(dataset.ValidationError, subject, "filter %d skipped: %v", i, err)
		st.b.Metrics.DropFilter("invalid_shape")
		return nil, "", false
	}

	alias := demoAlias()
	if ident.Sanitize(f.Table) != primary {
		m, valid := ident.ValidateTable(f.Table, st.b.Whitelist)
		if !valid {
			st.warn(dataset.SecurityRejection, subject, "filter %d skipped: table is not in the whitelist", i)
			st.b.Metrics.RejectIdentifier("table")
			st.b.Metrics.DropFilter("rejected_table")
			return nil, "", false
		}
		member = m
		alias = ident.TableAlias(m, primary)
	}

	col, valid := st.b.column(tableKey(member, primary), f.Column)
	if !valid {
		st.warn(dataset.SecurityRejection, subject, "filter %d skipped: column is not allowed", i)
		st.b.Metrics.RejectIdentifier("column")
		st.b.Metrics.DropFilter("rejected_column")
		return nil, "", false
	}

	p := &writer{}
	p.column(alias, col)
	switch c := f.Criterion.(type) {
	case filter.Range:
		p.tok(tokBetween).bind(numberParam(c.Min), numberParam(c.Max))
	case *filter.Range:
		p.tok(tokBetween).bind(numberParam(c.Min), numberParam(c.Max))
	case filter.Categorical:
		p.tok(tokIn).bindList(normalizeValues(c.Values))
	case *filter.Categorical:
		p.tok(tokIn).bindList(normalizeValues(c.Values))
	}
	return p, member, true
}

// column validates a column of table against TableColumns when known.
func (b *Builder) column(table, name string) (ident.Identifier, bool) {
	allowed, known := b.TableColumns[table]
	if !known {
		return ident.Safe(name), true
	}
	clean, ok := ident.ValidateColumn(name, allowed)
	if !ok {
		return ident.Identifier{}, false
	}
	return ident.Safe(clean), true
}

func tableKey(member, primary string) string {
	if member == "" {
		return primary
	}
	return member
}

// Count wraps a base fragment in a distinct participant count.
//
// The count is over the merge column: the composite id for longitudinal
// keys that have one, otherwise the primary id.
func Count(base Fragment, keys dataset.MergeKeys) Fragment {
	w := &writer{}
	w.tok(tokSelect).tok(tokCountPrefix).column(demoAlias(), ident.Safe(keys.MergeColumn())).
		tok(tokCountSuffix).appendFragment(base)
	return Fragment{
		SQL:      w.String(),
		Params:   w.Params(),
		Tables:   base.Tables,
		Warnings: base.Warnings,
	}
}

// Data builds the SELECT over a base fragment.
//
// Every primary-table column is selected first, followed by each requested
// (table, column) pair that passes validation. Tables must have been joined
// by the base fragment. Duplicate references are skipped; an output name
// that collides with an earlier one is aliased "<alias>_<column>".
//
// ok is false when the select list would be empty.
func (b *Builder) Data(base Fragment, selections []ColumnSelection) (Fragment, bool) {
	st := &build{b: b, warnings: append([]Warning(nil), base.Warnings...)}
	primary := b.primary().String()
	demo := demoAlias()

	joined := map[string]bool{}
	for _, t := range base.Tables {
		joined[t] = true
	}

	list := &writer{}
	refs := map[string]bool{}
	names := map[string]bool{}
	n := 0
	add := func(alias, col ident.Identifier) {
		ref := alias.String() + "." + col.String()
		if refs[ref] {
			return
		}
		refs[ref] = true
		if n > 0 {
			list.tok(tokComma)
		}
		n++
		list.column(alias, col)
		if names[col.String()] {
			out := ident.Safe(alias.String() + "_" + col.String())
			list.tok(tokAs).ident(out)
			names[out.String()] = true
			return
		}
		names[col.String()] = true
	}

	for _, c := range b.PrimaryColumns {
		add(demo, ident.Safe(c))
	}

	for _, sel := range selections {
		var alias ident.Identifier
		key := primary
		if ident.Sanitize(sel.Table) == primary {
			alias = demo
		} else {
			member, ok := ident.ValidateTable(sel.Table, b.Whitelist)
			if !ok || !joined[member] {
				st.warn(dataset.SecurityRejection, sel.Table, "table is not joined by the base query")
				b.Metrics.RejectIdentifier("table")
				continue
			}
			alias = ident.TableAlias(member, primary)
			key = member
		}
		for _, c := range sel.Columns {
			col, ok := b.column(key, c)
			if !ok {
				st.warn(dataset.SecurityRejection, sel.Table+"."+c, "column is not allowed")
				b.Metrics.RejectIdentifier("column")
				continue
			}
			add(alias, col)
		}
	}

	if n == 0 {
		return Fragment{}, false
	}

	w := &writer{}
	w.tok(tokSelect).append(list).tok(tokSpace).appendFragment(base)
	return Fragment{
		SQL:      w.String(),
		Params:   w.Params(),
		Tables:   base.Tables,
		Warnings: st.warnings,
	}, true
}

// Validate reports the problems Base would skip, without keeping the SQL.
func (b *Builder) Validate(keys dataset.MergeKeys, set filter.Set, tables []string) []Warning {
	return b.Base(keys, set.Demographic, set.Behavioral, tables).Warnings
}

// ValidateRequest reports every problem with a full data request: what
// Base and Data would skip, plus selected columns whose names change under
// sanitization and so will not appear under the requested name.
func (b *Builder) ValidateRequest(keys dataset.MergeKeys, set filter.Set, selections []ColumnSelection) []Warning {
	tables := make([]string, 0, len(selections))
	for _, sel := range selections {
		tables = append(tables, sel.Table)
	}
	base := b.Base(keys, set.Demographic, set.Behavioral, tables)
	warnings := base.Warnings
	if frag, ok := b.Data(base, selections); ok {
		warnings = frag.Warnings
	}

	for _, sel := range selections {
		for _, c := range sel.Columns {
			if clean := ident.Sanitize(c); clean != c {
				warnings = append(warnings, Warning{
					Kind:    dataset.ValidationError,
					Subject: sel.Table + "." + c,
					Message: fmt.Sprintf("column name is rewritten to %q", clean),
				})
			}
		}
	}
	return warnings
}

// SelectionsFromMap converts a table → columns map into selections ordered
// by table name.
func SelectionsFromMap(m map[string][]string) []ColumnSelection {
	tables := make([]string, 0, len(m))
	for t := range m {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	out := make([]ColumnSelection, 0, len(tables))
	for _, t := range tables {
		out = append(out, ColumnSelection{Table: t, Columns: m[t]})
	}
	return out
}

// numberParam binds integral floats as integers so 18.0 binds as 18.
func numberParam(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

func normalizeValues(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = dataset.Normalize(v)
	}
	return out
}
