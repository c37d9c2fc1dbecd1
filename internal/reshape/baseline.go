package reshape

import (
	"regexp"

	"github.com/roach88/cohort/internal/dataset"
)

var baselinePattern = regexp.MustCompile(`^(.+)_(BAS[123])$`)

// baselinePriority lists baseline labels from most to least preferred.
var baselinePriority = []string{"BAS3", "BAS2", "BAS1"}

// ConsolidateBaseline merges "<name>_BAS1/2/3" column groups.
//
// For every base name with more than one BAS column, a "<name>_baseline"
// column is appended holding, per row, the first non-null value in the
// order BAS3, BAS2, BAS1. The member columns are dropped. Groups with a
// single member are left alone. An existing "<name>_baseline" column is
// replaced. With nothing to consolidate an equal copy of t is returned.
func ConsolidateBaseline(t *dataset.Table) *dataset.Table {
	if t == nil {
		return nil
	}

	groups := map[string]map[string]int{}
	var order []string
	for i, c := range t.Columns {
		m := baselinePattern.FindStringSubmatch(c)
		if m == nil {
			continue
		}
		base, level := m[1], m[2]
		if groups[base] == nil {
			groups[base] = map[string]int{}
			order = append(order, base)
		}
		groups[base][level] = i
	}

	var merged []string
	drop := map[int]bool{}
	for _, base := range order {
		if len(groups[base]) > 1 {
			merged = append(merged, base)
			for _, idx := range groups[base] {
				drop[idx] = true
			}
		}
	}
	if len(merged) == 0 {
		return t.Clone()
	}

	replaced := map[string]bool{}
	for _, base := range merged {
		replaced[base+"_baseline"] = true
	}

	var keep []int
	var columns []string
	for i, c := range t.Columns {
		if !drop[i] && !replaced[c] {
			keep = append(keep, i)
			columns = append(columns, c)
		}
	}
	for _, base := range merged {
		columns = append(columns, base+"_baseline")
	}

	out := dataset.NewTable(columns...)
	out.Rows = make([][]any, len(t.Rows))
	for r, row := range t.Rows {
		nr := make([]any, 0, len(columns))
		for _, idx := range keep {
			nr = append(nr, row[idx])
		}
		for _, base := range merged {
			var v any
			for _, level := range baselinePriority {
				idx, ok := groups[base][level]
				if ok && !dataset.IsNull(row[idx]) {
					v = row[idx]
					break
				}
			}
			nr = append(nr, v)
		}
		out.Rows[r] = nr
	}
	return out
}
