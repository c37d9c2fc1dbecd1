package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteCSV writes header and rows to dir/name and returns the path.
func WriteCSV(t *testing.T, dir, name string, header []string, rows ...[]string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	for _, r := range rows {
		require.NoError(t, w.Write(r))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return path
}

// LongitudinalDataset writes a small two-session dataset to a temp dir and
// returns the directory.
//
//	demographics.csv  ursi, session_num, age, sex, all_studies
//	cognitive.csv     ursi, session_num, score, group
//	mri.csv           ursi, session_num, volume
func LongitudinalDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	WriteCSV(t, dir, "demographics.csv",
		[]string{"ursi", "session_num", "age", "sex", "all_studies"},
		[]string{"S1", "1", "25", "F", "Sleep;Diet"},
		[]string{"S1", "2", "26", "F", "Sleep;Diet"},
		[]string{"S2", "1", "30", "M", "Diet"},
		[]string{"S3", "1", "70", "F", "Sleep"},
		[]string{"S3", "2", "71", "F", "Sleep"},
		[]string{"S4", "1", "17", "M", "Exercise"},
	)
	WriteCSV(t, dir, "cognitive.csv",
		[]string{"ursi", "session_num", "score", "group"},
		[]string{"S1", "1", "100", "A"},
		[]string{"S1", "2", "110", "A"},
		[]string{"S2", "1", "95", "B"},
		[]string{"S3", "1", "80", "A"},
		[]string{"S3", "2", "85", "A"},
	)
	WriteCSV(t, dir, "mri.csv",
		[]string{"ursi", "session_num", "volume"},
		[]string{"S1", "1", "1.5"},
		[]string{"S2", "1", "1.7"},
	)
	return dir
}

// CrossSectionalDataset writes a one-row-per-subject dataset and returns the directory.
func CrossSectionalDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	WriteCSV(t, dir, "demographics.csv",
		[]string{"ursi", "age", "sex"},
		[]string{"S1", "25", "F"},
		[]string{"S2", "40", "M"},
		[]string{"S3", "67", "F"},
	)
	WriteCSV(t, dir, "cognitive.csv",
		[]string{"ursi", "score"},
		[]string{"S1", "100"},
		[]string{"S2", "120"},
	)
	return dir
}
