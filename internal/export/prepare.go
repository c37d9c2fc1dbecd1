// Package export prepares query results for download and writes them as
// CSV or Parquet.
package export

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/ident"
	"github.com/roach88/cohort/internal/logger"
	"github.com/roach88/cohort/internal/reshape"
)

// Thresholds used by Validate.
const (
	SparseThreshold = 95.0
	MaxColumns      = 1000
)

// Options selects the transformations Prepare applies.
type Options struct {
	// DropEmptyColumns removes columns with no values.
	DropEmptyColumns bool

	// Wide pivots longitudinal data to one row per subject.
	Wide bool

	// ConsolidateBaseline merges BAS1..BAS3 columns after widening.
	ConsolidateBaseline bool
}

// DefaultOptions drops empty columns and keeps the long format.
func DefaultOptions() Options {
	return Options{DropEmptyColumns: true}
}

// Prepare transforms t for export. In order: empty columns are dropped,
// the table is widened (and baselines consolidated) when requested, and
// rows are sorted by primary id. Validate runs last; its warnings are
// returned with the processing messages, prefixed "Warning: ".
//
// An empty result is a dataset.ValidationError.
func Prepare(t *dataset.Table, keys dataset.MergeKeys, opts Options, log *slog.Logger) (*dataset.Table, []string, error) {
	log = logger.OrDefault(log)
	var messages []string
	out := t.Clone()

	if opts.DropEmptyColumns {
		var empty []string
		for _, c := range out.Columns {
			if out.Len() > 0 && out.NullCount(c) == out.Len() {
				empty = append(empty, c)
			}
		}
		if len(empty) > 0 {
			out = out.DropColumns(empty...)
			messages = append(messages, fmt.Sprintf("Removed %d empty column(s)", len(empty)))
		}
	}

	switch {
	case opts.Wide && keys.IsLongitudinal:
		rows, cols := out.Len(), len(out.Columns)
		wide := reshape.Widen(out, keys)
		if wide == out {
			log.Warn("wide format requested but the table was left unchanged")
		}
		out = wide
		if opts.ConsolidateBaseline {
			out = reshape.ConsolidateBaseline(out)
		}
		messages = append(messages, fmt.Sprintf("Transformed to wide format: (%d, %d) -> (%d, %d)",
			rows, cols, out.Len(), len(out.Columns)))
	case opts.Wide:
		messages = append(messages, "Skipped wide format transformation (data is not longitudinal)")
	}

	if id := column(out, keys.PrimaryID); id != "" {
		out = out.SortBy(id)
	}

	ok, warnings := Validate(out, keys)
	for _, w := range warnings {
		messages = append(messages, "Warning: "+w)
	}
	if !ok {
		return nil, messages, dataset.NewValidationError("prepare export", strings.Join(warnings, "; "), nil)
	}
	return out, messages, nil
}

// Validate checks a table before export. ok is false only for an empty
// table; everything else is reported as a warning.
func Validate(t *dataset.Table, keys dataset.MergeKeys) (ok bool, warnings []string) {
	if t == nil || t.Len() == 0 {
		return false, []string{"Export table is empty"}
	}

	id := column(t, keys.PrimaryID)
	if id == "" {
		warnings = append(warnings, fmt.Sprintf("Primary ID column %q missing from export data", keys.PrimaryID))
	}

	var empty, sparse []string
	for _, c := range t.Columns {
		nulls := t.NullCount(c)
		if nulls == t.Len() {
			empty = append(empty, c)
		}
		if pct := float64(nulls) / float64(t.Len()) * 100; pct > SparseThreshold {
			sparse = append(sparse, fmt.Sprintf("%s (%.1f%% missing)", c, pct))
		}
	}
	if len(empty) > 0 {
		warnings = append(warnings, "Export contains completely empty columns: "+strings.Join(first(empty, 5), ", "))
	}
	if len(sparse) > 0 {
		warnings = append(warnings, "Export contains very sparse columns: "+strings.Join(first(sparse, 3), ", "))
	}

	if id != "" {
		seen := map[string]bool{}
		dups := 0
		for _, v := range t.Column(id) {
			k := dataset.Key(v)
			if seen[k] {
				dups++
			}
			seen[k] = true
		}
		if dups > 0 {
			warnings = append(warnings, fmt.Sprintf("Export contains %d duplicate participant(s)", dups))
		}
	}

	if len(t.Columns) > MaxColumns {
		warnings = append(warnings, fmt.Sprintf("Export has many columns (%d) - file may be large", len(t.Columns)))
	}
	return true, warnings
}

// column finds name in t, falling back to its sanitized form.
func column(t *dataset.Table, name string) string {
	if name == "" {
		return ""
	}
	if t.HasColumn(name) {
		return name
	}
	if clean := ident.Sanitize(name); t.HasColumn(clean) {
		return clean
	}
	return ""
}

func first(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
