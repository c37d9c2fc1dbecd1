package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/dataset"
	"github.com/roach88/cohort/internal/source"
)

var longKeys = dataset.MergeKeys{
	PrimaryID:      "ursi",
	SessionID:      "session_num",
	CompositeID:    "customID",
	IsLongitudinal: true,
}

func longTable(t *testing.T) *dataset.Table {
	t.Helper()
	tbl := dataset.NewTable("ursi", "session_num", "customID", "sex", "score", "unused")
	for _, r := range [][]any{
		{"S2", int64(1), "S2_1", "M", int64(95), nil},
		{"S1", int64(1), "S1_1", "F", int64(100), nil},
		{"S1", int64(2), "S1_2", "F", int64(110), nil},
	} {
		require.NoError(t, tbl.Append(r...))
	}
	return tbl
}

func TestPrepare_LongDropsEmptyAndSorts(t *testing.T) {
	out, messages, err := Prepare(longTable(t), longKeys, DefaultOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"ursi", "session_num", "customID", "sex", "score"}, out.Columns)
	assert.Equal(t, []any{"S1", "S1", "S2"}, out.Column("ursi"))
	assert.Contains(t, messages, "Removed 1 empty column(s)")
	assert.Contains(t, messages, "Warning: Export contains 1 duplicate participant(s)")
}

func TestPrepare_Wide(t *testing.T) {
	out, messages, err := Prepare(longTable(t), longKeys, Options{DropEmptyColumns: true, Wide: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"ursi", "sex", "score_BAS1", "score_BAS2"}, out.Columns)
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, []any{"S1", "S2"}, out.Column("ursi"))
	assert.Equal(t, []any{int64(110), nil}, out.Column("score_BAS2"))
	assert.Contains(t, messages, "Transformed to wide format: (3, 5) -> (2, 4)")
}

func TestPrepare_WideWithBaseline(t *testing.T) {
	out, _, err := Prepare(longTable(t), longKeys,
		Options{DropEmptyColumns: true, Wide: true, ConsolidateBaseline: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"ursi", "sex", "score_baseline"}, out.Columns)
	// BAS2 wins over BAS1 when present.
	assert.Equal(t, []any{int64(110), int64(95)}, out.Column("score_baseline"))
}

func TestPrepare_WideOnCrossSectional(t *testing.T) {
	keys := dataset.MergeKeys{PrimaryID: "ursi"}
	_, messages, err := Prepare(longTable(t), keys, Options{Wide: true}, nil)
	require.NoError(t, err)
	assert.Contains(t, messages, "Skipped wide format transformation (data is not longitudinal)")
}

func TestPrepare_EmptyFails(t *testing.T) {
	_, _, err := Prepare(dataset.NewTable("ursi"), longKeys, DefaultOptions(), nil)
	require.Error(t, err)
	assert.True(t, dataset.IsKind(err, dataset.ValidationError))
}

func TestValidate_Warnings(t *testing.T) {
	tbl := dataset.NewTable("id", "sparse")
	for i := 0; i < 30; i++ {
		require.NoError(t, tbl.Append(int64(i), nil))
	}

	ok, warnings := Validate(tbl, longKeys)
	assert.True(t, ok)
	assert.Equal(t, []string{
		`Primary ID column "ursi" missing from export data`,
		"Export contains completely empty columns: sparse",
		"Export contains very sparse columns: sparse (100.0% missing)",
	}, warnings)
}

func TestFilename(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))

	tests := []struct {
		tables []string
		wide   bool
		want   string
	}{
		{nil, false, "demographics_only_long_20250102_030405.csv"},
		{[]string{"demographics"}, true, "demographics_only_wide_20250102_030405.csv"},
		{[]string{"demographics", "cognitive"}, true, "cognitive_wide_20250102_030405.csv"},
		{[]string{"cognitive", "mri", "eeg"}, false, "cognitive_mri_eeg_long_20250102_030405.csv"},
		{[]string{"a", "b", "c", "d"}, false, "a_and_3_more_long_20250102_030405.csv"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Filename(tt.tables, "demographics", tt.wide, "", clock))
	}
	assert.Equal(t, "cognitive_long_20250102_030405.parquet",
		Filename([]string{"cognitive"}, "demographics", false, ".parquet", clock))
}

func TestWriteCSV(t *testing.T) {
	tbl := dataset.NewTable("ursi", "score", "ratio")
	require.NoError(t, tbl.Append("S1", int64(100), 0.5))
	require.NoError(t, tbl.Append("S2", nil, 2.0))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, "ursi,score,ratio\nS1,100,0.5\nS2,,2\n", buf.String())
}

func TestWriteFile_ParquetRoundTrip(t *testing.T) {
	tbl := dataset.NewTable("ursi", "score", "ratio", "note")
	require.NoError(t, tbl.Append("S1", int64(100), 0.5, nil))
	require.NoError(t, tbl.Append("S2", nil, 1.5, "late"))

	path := filepath.Join(t.TempDir(), "out.parquet")
	require.NoError(t, WriteFile(path, tbl))

	got, err := source.ReadTable(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, tbl.Columns, got.Columns)
	require.Equal(t, 2, got.Len())

	byID := got.SortBy("ursi")
	assert.Equal(t, "S1", byID.Value(0, "ursi"))
	assert.Equal(t, int64(100), byID.Value(0, "score"))
	assert.Nil(t, byID.Value(1, "score"))
	assert.Equal(t, 1.5, byID.Value(1, "ratio"))
	assert.Equal(t, "late", byID.Value(1, "note"))
	assert.Nil(t, byID.Value(0, "note"))
}

func TestWriteFile_UnsupportedExtension(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "out.xlsx"), dataset.NewTable("a"))
	require.Error(t, err)
	assert.True(t, dataset.IsKind(err, dataset.ConfigurationError))
}
