package dataset

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AppendNormalizes(t *testing.T) {
	tbl := NewTable("id", "score", "raw")
	require.NoError(t, tbl.Append("S1", 3, []byte("x")))

	assert.Equal(t, []any{"S1", int64(3), "x"}, tbl.Rows[0])
	assert.Error(t, tbl.Append("only-one"))
}

func TestTable_DropAndSort(t *testing.T) {
	tbl := NewTable("id", "a", "b")
	require.NoError(t, tbl.Append("S2", 2, nil))
	require.NoError(t, tbl.Append("S10", 10, nil))
	require.NoError(t, tbl.Append("S1", 1, "x"))

	dropped := tbl.DropColumns("b")
	assert.Equal(t, []string{"id", "a"}, dropped.Columns)
	assert.Len(t, dropped.Rows[0], 2)

	sorted := tbl.SortBy("a")
	assert.Equal(t, []any{"S1", "S2", "S10"}, sorted.Column("id"))
	// original untouched
	assert.Equal(t, "S2", tbl.Value(0, "id"))

	assert.Equal(t, 2, tbl.NullCount("b"))
}

func TestCompareAndKey(t *testing.T) {
	assert.Equal(t, -1, Compare(int64(2), 10.0))
	assert.Equal(t, 1, Compare(nil, "a"))
	assert.Equal(t, Key(int64(1)), Key(1.0))
	assert.NotEqual(t, Key("1"), Key(int64(1)))
	assert.Equal(t, "2", Format(2.0))
	assert.Equal(t, "2.5", Format(2.5))
}

func TestError_Kinds(t *testing.T) {
	base := NewDataAccessError("detect structure", "/nope.csv", errors.New("no such file"))
	wrapped := fmt.Errorf("load: %w", base)

	assert.True(t, IsKind(wrapped, DataAccessError))
	assert.False(t, IsKind(wrapped, ValidationError))

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, DataAccessError, kind)
	assert.Contains(t, wrapped.Error(), "/nope.csv")
	assert.Equal(t, "/nope.csv", base.Details["path"])
}
