// Package reshape converts longitudinal long-format tables to one row per
// subject.
//
// Both operations are pure: they never modify their input and return the
// same output for the same input.
package reshape

import (
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/ident"
)

var unsafeLabelChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SessionLabel maps a session value to its column suffix.
//
// Sessions 1, 2 and 3 (in any numeric spelling) become BAS1, BAS2 and BAS3.
// Anything else becomes "SES<value>".
func SessionLabel(v any) string {
	s := dataset.Format(v)
	if f, ok := dataset.ToFloat(v); ok && f == math.Trunc(f) {
		s = dataset.Format(f)
	}
	switch s {
	case "1":
		return "BAS1"
	case "2":
		return "BAS2"
	case "3":
		return "BAS3"
	}
	return "SES" + unsafeLabelChars.ReplaceAllString(s, "_")
}

// Widen pivots a longitudinal table to one row per subject.
//
// The input is returned unchanged when keys are not longitudinal, when the
// primary or session column is missing, or when fewer than two distinct
// sessions are present.
//
// Columns other than the id columns are classified per subject: a column is
// static when no subject has more than one distinct non-null value, dynamic
// otherwise. The output holds the primary id, every static column (first
// non-null value per subject) and one "<column>_<label>" column per dynamic
// column and session that has at least one value. A pivoted name already
// taken by an earlier column gets a numeric suffix ("age_BAS1_2"). Subjects
// keep their order of first appearance; rows with a missing primary id are
// dropped.
func Widen(t *dataset.Table, keys dataset.MergeKeys) *dataset.Table {
	if t == nil || !keys.IsLongitudinal || keys.SessionID == "" {
		return t
	}
	pi := resolve(t, keys.PrimaryID)
	si := resolve(t, keys.SessionID)
	if pi < 0 || si < 0 {
		return t
	}
	ci := -1
	if keys.CompositeID != "" {
		ci = resolve(t, keys.CompositeID)
	}

	labels := sessionLabels(t, si)
	if labels == nil {
		return t
	}

	// Subjects in first-appearance order.
	subjectIndex := map[string]int{}
	var subjects []any
	rowSubject := make([]int, len(t.Rows))
	for r, row := range t.Rows {
		id := row[pi]
		if dataset.IsNull(id) {
			rowSubject[r] = -1
			continue
		}
		k := dataset.Key(id)
		idx, ok := subjectIndex[k]
		if !ok {
			idx = len(subjects)
			subjectIndex[k] = idx
			subjects = append(subjects, id)
		}
		rowSubject[r] = idx
	}

	var dataCols []int
	for c := range t.Columns {
		if c != pi && c != si && c != ci {
			dataCols = append(dataCols, c)
		}
	}

	var static, dynamic []int
	for _, c := range dataCols {
		if isStatic(t, c, rowSubject, len(subjects)) {
			static = append(static, c)
		} else {
			dynamic = append(dynamic, c)
		}
	}

	columns := []string{t.Columns[pi]}
	for _, c := range static {
		columns = append(columns, t.Columns[c])
	}
	taken := map[string]bool{}
	for _, c := range columns {
		taken[c] = true
	}

	// Dynamic cells keyed by column, label and subject; first non-null wins.
	type cell struct {
		col   int
		label string
	}
	pivot := map[cell][]any{}
	present := map[cell]bool{}
	for r, row := range t.Rows {
		s := rowSubject[r]
		if s < 0 || dataset.IsNull(row[si]) {
			continue
		}
		label := SessionLabel(row[si])
		for _, c := range dynamic {
			v := row[c]
			if dataset.IsNull(v) {
				continue
			}
			key := cell{col: c, label: label}
			values, ok := pivot[key]
			if !ok {
				values = make([]any, len(subjects))
				pivot[key] = values
			}
			if values[s] == nil {
				values[s] = v
			}
			present[key] = true
		}
	}

	var pivoted []cell
	for _, c := range dynamic {
		for _, label := range labels {
			key := cell{col: c, label: label}
			if present[key] {
				pivoted = append(pivoted, key)
				columns = append(columns, uniqueName(taken, t.Columns[c]+"_"+label))
			}
		}
	}

	out := dataset.NewTable(columns...)
	out.Rows = make([][]any, len(subjects))
	for s := range subjects {
		out.Rows[s] = make([]any, len(columns))
		out.Rows[s][0] = subjects[s]
	}
	for r, row := range t.Rows {
		s := rowSubject[r]
		if s < 0 {
			continue
		}
		for j, c := range static {
			if out.Rows[s][1+j] == nil && !dataset.IsNull(row[c]) {
				out.Rows[s][1+j] = row[c]
			}
		}
	}
	offset := 1 + len(static)
	for j, key := range pivoted {
		values := pivot[key]
		for s := range subjects {
			out.Rows[s][offset+j] = values[s]
		}
	}
	return out
}

// uniqueName returns name, or name with the lowest free "_<n>" suffix, and
// marks the result taken.
func uniqueName(taken map[string]bool, name string) string {
	out := name
	for n := 2; taken[out]; n++ {
		out = name + "_" + strconv.Itoa(n)
	}
	taken[out] = true
	return out
}

// sessionLabels returns the distinct session labels in session order, or
// nil when fewer than two distinct sessions exist.
func sessionLabels(t *dataset.Table, si int) []string {
	seen := map[string]bool{}
	var sessions []any
	for _, row := range t.Rows {
		v := row[si]
		if dataset.IsNull(v) {
			continue
		}
		k := dataset.Key(v)
		if !seen[k] {
			seen[k] = true
			sessions = append(sessions, v)
		}
	}
	if len(sessions) < 2 {
		return nil
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return dataset.Compare(sessions[i], sessions[j]) < 0
	})

	var labels []string
	used := map[string]bool{}
	for _, s := range sessions {
		l := SessionLabel(s)
		if !used[l] {
			used[l] = true
			labels = append(labels, l)
		}
	}
	return labels
}

// isStatic reports whether column c holds at most one distinct non-null
// value for every subject.
func isStatic(t *dataset.Table, c int, rowSubject []int, subjects int) bool {
	first := make([]string, subjects)
	for r, row := range t.Rows {
		s := rowSubject[r]
		if s < 0 || dataset.IsNull(row[c]) {
			continue
		}
		k := dataset.Key(row[c])
		switch first[s] {
		case "":
			first[s] = k
		case k:
		default:
			return false
		}
	}
	return true
}

// resolve finds a column by exact name, then by sanitized name.
func resolve(t *dataset.Table, name string) int {
	if idx := t.ColumnIndex(name); idx >= 0 {
		return idx
	}
	clean := ident.Sanitize(name)
	for i, c := range t.Columns {
		if ident.Sanitize(c) == clean {
			return i
		}
	}
	return -1
}
