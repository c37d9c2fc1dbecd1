package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/querysql"
)

func TestAssertParams_ComparesByValue(t *testing.T) {
	a := Assertion{Type: AssertParams, Params: []any{18, 65, "1"}}
	assert.NoError(t, assertParams(a, []any{int64(18), int64(65), "1"}))
	assert.Error(t, assertParams(a, []any{int64(18), int64(65), int64(1)}))
	assert.Error(t, assertParams(a, []any{int64(18)}))
}

func TestAssertTable_Cells(t *testing.T) {
	tbl := dataset.NewTable("ursi", "age_BAS1", "age_BAS2")
	require.NoError(t, tbl.Append("S1", int64(20), int64(21)))
	require.NoError(t, tbl.Append("S2", int64(30), nil))
	keys := dataset.MergeKeys{PrimaryID: "ursi", SessionID: "session_num", IsLongitudinal: true}

	rows := 2
	ok := Assertion{Type: AssertExport, Rows: &rows, Cells: []CellSpec{
		{ID: "S1", Column: "age_BAS2", Value: 21},
		{ID: "S2", Column: "age_BAS2"},
	}}
	assert.NoError(t, assertTable(ok, tbl, keys))

	wrong := Assertion{Type: AssertExport, Cells: []CellSpec{{ID: "S2", Column: "age_BAS2", Value: 31}}}
	assert.Error(t, assertTable(wrong, tbl, keys))

	missing := Assertion{Type: AssertExport, Cells: []CellSpec{{ID: "S9", Column: "age_BAS1", Value: 1}}}
	assert.Error(t, assertTable(missing, tbl, keys))
}

func TestCheck_Warnings(t *testing.T) {
	n := int64(1)
	obs := Observation{}
	obs.Plan.Warnings = []querysql.Warning{{Kind: dataset.SecurityRejection, Subject: "secrets", Message: "table is not in the whitelist"}}
	assert.NoError(t, check(Assertion{Type: AssertWarnings, Count: &n}, obs))

	zero := int64(0)
	err := check(Assertion{Type: AssertWarnings, Count: &zero}, obs)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertWarnings, ae.Type)
}
