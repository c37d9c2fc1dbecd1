package catalog

import (
	"math"
	"sort"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/filter"
)

// ColumnProfile summarizes one column of a loaded table.
type ColumnProfile struct {
	Name     string               `json:"name"`
	Numeric  bool                 `json:"numeric"`
	Range    *filter.NumericRange `json:"range,omitempty"`
	Distinct int                  `json:"distinct"`
	Nulls    int                  `json:"nulls"`
}

// Profile computes per-column statistics. A column is numeric when every
// non-null value is an int64 or float64.
func Profile(t *dataset.Table) []ColumnProfile {
	out := make([]ColumnProfile, 0, len(t.Columns))
	for i, name := range t.Columns {
		p := ColumnProfile{Name: name, Numeric: true}
		seen := map[string]bool{}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, row := range t.Rows {
			v := row[i]
			if dataset.IsNull(v) {
				p.Nulls++
				continue
			}
			seen[dataset.Key(v)] = true
			switch n := v.(type) {
			case int64:
				lo, hi = math.Min(lo, float64(n)), math.Max(hi, float64(n))
			case float64:
				lo, hi = math.Min(lo, n), math.Max(hi, n)
			default:
				p.Numeric = false
			}
		}
		p.Distinct = len(seen)
		if p.Distinct == 0 {
			p.Numeric = false
		}
		if p.Numeric {
			p.Range = &filter.NumericRange{Min: lo, Max: hi}
		}
		out = append(out, p)
	}
	return out
}

// SessionValues returns the distinct non-null values of the session column
// as display strings, sorted numerically where possible.
func SessionValues(t *dataset.Table, sessionColumn string) []string {
	idx := t.ColumnIndex(sessionColumn)
	if idx < 0 {
		return nil
	}
	seen := map[string]any{}
	for _, row := range t.Rows {
		v := row[idx]
		if dataset.IsNull(v) {
			continue
		}
		seen[dataset.Format(v)] = v
	}
	values := make([]any, 0, len(seen))
	for _, v := range seen {
		values = append(values, v)
	}
	sort.SliceStable(values, func(i, j int) bool {
		return dataset.Compare(values[i], values[j]) < 0
	})
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = dataset.Format(v)
	}
	return out
}
