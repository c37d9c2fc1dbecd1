package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/ident"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func fail(typ string, expected, actual any) error {
	return &AssertionError{Type: typ, Expected: fmt.Sprint(expected), Actual: fmt.Sprint(actual)}
}

// check evaluates one assertion against an observation.
func check(a Assertion, obs Observation) error {
	switch a.Type {
	case AssertStructure:
		return assertStructure(a, obs)
	case AssertCount:
		if obs.Count != *a.Count {
			return fail(a.Type, *a.Count, obs.Count)
		}
	case AssertSQLContains:
		if !strings.Contains(obs.Plan.Count.SQL, a.Text) {
			return fail(a.Type, fmt.Sprintf("SQL containing %q", a.Text), obs.Plan.Count.SQL)
		}
	case AssertSQLExcludes:
		if strings.Contains(obs.Plan.Count.SQL, a.Text) {
			return fail(a.Type, fmt.Sprintf("SQL without %q", a.Text), obs.Plan.Count.SQL)
		}
	case AssertParams:
		return assertParams(a, obs.Plan.Count.Params)
	case AssertWarnings:
		if n := int64(len(obs.Plan.Warnings)); n != *a.Count {
			return fail(a.Type, fmt.Sprintf("%d warning(s)", *a.Count), obs.Plan.Warnings)
		}
	case AssertReport:
		return assertReport(a, obs)
	case AssertData:
		if obs.Data == nil {
			return fail(a.Type, "a data query", "nothing selected")
		}
		return assertTable(a, obs.Data, obs.Keys)
	case AssertExport:
		if obs.ExportError != nil {
			return fail(a.Type, "an export", obs.ExportError)
		}
		return assertTable(a, obs.Export, obs.Keys)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func assertStructure(a Assertion, obs Observation) error {
	if a.Longitudinal != nil && obs.Keys.IsLongitudinal != *a.Longitudinal {
		return fail(a.Type, fmt.Sprintf("longitudinal=%t", *a.Longitudinal), fmt.Sprintf("longitudinal=%t", obs.Keys.IsLongitudinal))
	}
	if a.MergeColumn != "" && obs.Keys.MergeColumn() != a.MergeColumn {
		return fail(a.Type, "merge column "+a.MergeColumn, obs.Keys.MergeColumn())
	}
	return nil
}

// assertParams compares bound parameters by value, so 18 matches int64(18)
// and "1" matches only the string "1".
func assertParams(a Assertion, got []any) error {
	if len(got) != len(a.Params) {
		return fail(a.Type, a.Params, got)
	}
	for i := range got {
		if dataset.Key(dataset.Normalize(a.Params[i])) != dataset.Key(got[i]) {
			return fail(a.Type, a.Params, got)
		}
	}
	return nil
}

func assertReport(a Assertion, obs Observation) error {
	s := obs.Report
	if s.Error != "" {
		return fail(a.Type, "a report", s.Error)
	}
	got := make([]int64, len(s.Steps))
	for i, st := range s.Steps {
		got[i] = st.CountAfter
	}
	if fmt.Sprint(got) != fmt.Sprint(a.Remaining) {
		return fail(a.Type, a.Remaining, got)
	}
	return nil
}

func assertTable(a Assertion, t *dataset.Table, keys dataset.MergeKeys) error {
	if a.Rows != nil && t.Len() != *a.Rows {
		return fail(a.Type, fmt.Sprintf("%d row(s)", *a.Rows), t.Len())
	}
	for _, c := range a.Columns {
		if !t.HasColumn(c) {
			return fail(a.Type, "column "+c, t.Columns)
		}
	}

	id := ident.Sanitize(keys.PrimaryID)
	for _, cell := range a.Cells {
		if !t.HasColumn(cell.Column) {
			return fail(a.Type, "column "+cell.Column, t.Columns)
		}
		row := -1
		for i := 0; i < t.Len(); i++ {
			if dataset.Format(t.Value(i, id)) == cell.ID {
				row = i
				break
			}
		}
		if row < 0 {
			return fail(a.Type, fmt.Sprintf("a row with %s=%s", id, cell.ID), "none")
		}
		got := t.Value(row, cell.Column)
		if dataset.Key(got) != dataset.Key(dataset.Normalize(cell.Value)) {
			return fail(a.Type, fmt.Sprintf("%s[%s]=%v", cell.ID, cell.Column, cell.Value), got)
		}
	}
	return nil
}
