package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cohort/internal/dataset"
)

// Summary is the outcome of a filter report.
type Summary struct {
	ReportID        string    `json:"report_id,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
	InitialCount    int64     `json:"initial_participants"`
	FinalCount      int64     `json:"final_participants"`
	TotalRemoved    int64     `json:"total_removed"`
	TotalRemovalPct float64   `json:"total_removal_percentage"`
	Steps           []Step    `json:"steps"`

	// Error is set when a count failed. The steps recorded before and after
	// the failure are still reported.
	Error string `json:"error,omitempty"`

	// Failures lists every step whose count failed.
	Failures []Failure `json:"failures,omitempty"`
}

// Failure is a step that could not be counted.
type Failure struct {
	Kind        string `json:"type"`
	Description string `json:"description"`
	Error       string `json:"error"`
}

// ToMap returns the summary in its plain map form.
func (s Summary) ToMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, st := range s.Steps {
		steps[i] = map[string]any{
			"step":        st.Number,
			"type":        string(st.Kind),
			"description": st.Description,
			"removed":     st.Removed,
			"remaining":   st.CountAfter,
			"removal_pct": st.RemovalPct,
		}
	}
	m := map[string]any{
		"initial_participants":     s.InitialCount,
		"final_participants":       s.FinalCount,
		"total_removed":            s.TotalRemoved,
		"total_removal_percentage": s.TotalRemovalPct,
		"number_of_steps":          len(s.Steps),
		"steps":                    steps,
	}
	if s.Error != "" {
		m["error"] = s.Error
	}
	return m
}

// Report table column names.
var ReportColumns = []string{
	"Step",
	"Filter Type",
	"Filter Description",
	"Participants Before",
	"Participants After",
	"Participants Removed",
	"Removal %",
	"Cumulative Removal %",
}

// Table returns the report as rows: an initial row (step 0) followed by one
// row per step with its cumulative removal relative to the initial count.
// Percentages are rounded to two decimal places.
func (s Summary) Table() *dataset.Table {
	t := dataset.NewTable(ReportColumns...)
	mustAppend(t, int64(0), "Initial", "No filters applied", "-", s.InitialCount, int64(0), 0.0, 0.0)

	var cumulative int64
	for _, st := range s.Steps {
		cumulative += st.Removed
		mustAppend(t,
			int64(st.Number),
			title(string(st.Kind)),
			st.Description,
			st.CountBefore,
			st.CountAfter,
			st.Removed,
			round2(st.RemovalPct),
			round2(percent(cumulative, s.InitialCount)),
		)
	}
	return t
}

// mustAppend appends a report row. The row shape is fixed by ReportColumns,
// so a mismatch is a programming error.
func mustAppend(t *dataset.Table, values ...any) {
	if err := t.Append(values...); err != nil {
		panic(fmt.Sprintf("report table: %v", err))
	}
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
