// Package report measures how each filter narrows a cohort.
//
// A Tracker records a sequence of participant counts. A Generator drives a
// Tracker by applying filters cumulatively in a fixed order and counting
// after each one through an injected Counter.
package report

import (
	"errors"
	"math"

	"github.com/roach88/cohort/internal/filter"
)

// State is the lifecycle state of a Tracker.
type State int

const (
	// StateEmpty holds an initial count and no steps.
	StateEmpty State = iota
	// StateCounting holds at least one step.
	StateCounting
	// StateDone is terminal; no more steps may be added.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateCounting:
		return "counting"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// ErrTrackerDone is returned when a step is added after Finish.
var ErrTrackerDone = errors.New("tracker is finished")

// Step is one filter application.
type Step struct {
	Number      int         `json:"step"`
	Kind        filter.Kind `json:"type"`
	Description string      `json:"description"`
	CountBefore int64       `json:"count_before"`
	CountAfter  int64       `json:"remaining"`
	Removed     int64       `json:"removed"`
	RemovalPct  float64     `json:"removal_pct"`
}

// Tracker accumulates filter steps.
//
// Invariants: step numbers are 1..N in order, each step's CountBefore is the
// previous step's CountAfter (or the initial count), and Current equals the
// last step's CountAfter.
//
// A Tracker is not safe for concurrent use.
type Tracker struct {
	initial int64
	current int64
	steps   []Step
	state   State
}

// NewTracker creates a tracker starting from initial participants.
func NewTracker(initial int64) *Tracker {
	return &Tracker{initial: initial, current: initial, state: StateEmpty}
}

// AddStep records a filter that left newCount participants.
//
// Removed is current - newCount and may be negative if a filter admits rows
// (e.g. a left join that was previously empty). The percentage is relative
// to the count before the step and is 0 when that count is 0.
func (t *Tracker) AddStep(kind filter.Kind, description string, newCount int64) (Step, error) {
	if t.state == StateDone {
		return Step{}, ErrTrackerDone
	}
	removed := t.current - newCount
	step := Step{
		Number:      len(t.steps) + 1,
		Kind:        kind,
		Description: description,
		CountBefore: t.current,
		CountAfter:  newCount,
		Removed:     removed,
		RemovalPct:  percent(removed, t.current),
	}
	t.steps = append(t.steps, step)
	t.current = newCount
	t.state = StateCounting
	return step, nil
}

// Finish moves the tracker to StateDone.
func (t *Tracker) Finish() {
	t.state = StateDone
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

// Initial returns the starting count.
func (t *Tracker) Initial() int64 {
	return t.initial
}

// Current returns the count after the last step.
func (t *Tracker) Current() int64 {
	return t.current
}

// Steps returns a copy of the recorded steps.
func (t *Tracker) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Summary returns the totals and steps recorded so far.
func (t *Tracker) Summary() Summary {
	removed := t.initial - t.current
	return Summary{
		InitialCount:    t.initial,
		FinalCount:      t.current,
		TotalRemoved:    removed,
		TotalRemovalPct: percent(removed, t.initial),
		Steps:           t.Steps(),
	}
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
