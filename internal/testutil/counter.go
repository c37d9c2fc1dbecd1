// Package testutil provides fakes and fixtures shared by cohort tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/cohort/internal/querysql"
)

// SequenceCounter returns scripted counts in call order and records every
// fragment it is asked to count.
//
// Fails lists call indexes (0-based) that return an error instead of a count;
// a failing call does not consume a count.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequenceCounter struct {
	mu      sync.Mutex
	counts  []int64
	fails   map[int]bool
	calls   int
	queries []querysql.Fragment
}

// NewSequenceCounter creates a counter returning counts in order.
func NewSequenceCounter(counts ...int64) *SequenceCounter {
	return &SequenceCounter{counts: counts, fails: map[int]bool{}}
}

// FailOn makes the call with the given index fail.
func (c *SequenceCounter) FailOn(calls ...int) *SequenceCounter {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range calls {
		c.fails[n] = true
	}
	return c
}

// Count implements report.Counter.
func (c *SequenceCounter) Count(_ context.Context, q querysql.Fragment) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.calls
	c.calls++
	c.queries = append(c.queries, q)
	if c.fails[call] {
		return 0, fmt.Errorf("scripted failure on call %d", call)
	}
	if len(c.counts) == 0 {
		return 0, fmt.Errorf("no scripted count for call %d", call)
	}
	n := c.counts[0]
	c.counts = c.counts[1:]
	return n, nil
}

// Queries returns every fragment counted so far.
func (c *SequenceCounter) Queries() []querysql.Fragment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]querysql.Fragment, len(c.queries))
	copy(out, c.queries)
	return out
}

// FixedIDGenerator always returns the same report ID.
type FixedIDGenerator struct {
	ID string
}

// Generate returns the fixed ID, or "test-report" when unset.
func (g FixedIDGenerator) Generate() string {
	if g.ID == "" {
		return "test-report"
	}
	return g.ID
}
