package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/filter"
)

func TestTracker_Steps(t *testing.T) {
	tr := NewTracker(100)
	assert.Equal(t, StateEmpty, tr.State())

	s1, err := tr.AddStep(filter.KindAge, "Age filter: 18-65 years", 80)
	require.NoError(t, err)
	s2, err := tr.AddStep(filter.KindBehavioral, "cog.score: 90-120", 50)
	require.NoError(t, err)

	assert.Equal(t, StateCounting, tr.State())
	assert.Equal(t, Step{1, filter.KindAge, "Age filter: 18-65 years", 100, 80, 20, 20}, s1)
	assert.Equal(t, Step{2, filter.KindBehavioral, "cog.score: 90-120", 80, 50, 30, 37.5}, s2)
	assert.Equal(t, int64(50), tr.Current())

	sum := tr.Summary()
	assert.Equal(t, int64(100), sum.InitialCount)
	assert.Equal(t, int64(50), sum.FinalCount)
	assert.Equal(t, int64(50), sum.TotalRemoved)
	assert.Equal(t, 50.0, sum.TotalRemovalPct)

	var removed int64
	for _, s := range sum.Steps {
		removed += s.Removed
	}
	assert.Equal(t, sum.InitialCount-sum.FinalCount, removed)
}

func TestTracker_ZeroInitial(t *testing.T) {
	tr := NewTracker(0)

	s, err := tr.AddStep(filter.KindAge, "Age filter: 1-2 years", 0)
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.RemovalPct)
	assert.Equal(t, 0.0, tr.Summary().TotalRemovalPct)
}

func TestTracker_Done(t *testing.T) {
	tr := NewTracker(10)
	tr.Finish()

	_, err := tr.AddStep(filter.KindAge, "x", 5)
	assert.ErrorIs(t, err, ErrTrackerDone)
	assert.Equal(t, StateDone, tr.State())
	assert.Equal(t, "done", tr.State().String())
}

func TestSummary_TableAndMap(t *testing.T) {
	tr := NewTracker(3)
	_, _ = tr.AddStep(filter.KindAge, "Age filter: 18-65 years", 2)
	_, _ = tr.AddStep(filter.KindBehavioral, "cog.score: 90-120", 1)
	sum := tr.Summary()

	tbl := sum.Table()
	assert.Equal(t, ReportColumns, tbl.Columns)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, []any{int64(0), "Initial", "No filters applied", "-", int64(3), int64(0), 0.0, 0.0}, tbl.Rows[0])
	assert.Equal(t, []any{int64(1), "Age", "Age filter: 18-65 years", int64(3), int64(2), int64(1), 33.33, 33.33}, tbl.Rows[1])
	assert.Equal(t, []any{int64(2), "Behavioral", "cog.score: 90-120", int64(2), int64(1), int64(1), 50.0, 66.67}, tbl.Rows[2])

	m := sum.ToMap()
	assert.Equal(t, 2, m["number_of_steps"])
	assert.Equal(t, int64(1), m["final_participants"])
	assert.NotContains(t, m, "error")
}

func TestMustAppend_PanicsOnShapeMismatch(t *testing.T) {
	tbl := dataset.NewTable(ReportColumns...)
	assert.Panics(t, func() { mustAppend(tbl, int64(0), "Initial") })
	assert.Equal(t, 0, tbl.Len())
}
