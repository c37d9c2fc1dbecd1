package harness

import (
	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/engine"
	"github.com/roach88/cohort/internal/report"
)

// Observation is everything a scenario run produced.
type Observation struct {
	Keys   dataset.MergeKeys
	Plan   engine.Plan
	Count  int64
	Report report.Summary

	// Data is nil when the request selects nothing.
	Data *dataset.Table

	// Export is the prepared table read back from the written file. Nil
	// when no export assertion asked for it or the export failed.
	Export      *dataset.Table
	ExportError error
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates overall success: true when every assertion held.
	Pass bool `json:"pass"`

	// Errors contains one message per failed assertion.
	Errors []string `json:"errors,omitempty"`

	Observation Observation `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
