package structure

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cohort/internal/dataset"
)

var defaults = Columns{PrimaryID: "ursi", SessionID: "session_num", CompositeID: "customID"}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		cols    Columns
		want    dataset.MergeKeys
	}{
		{
			name:    "longitudinal",
			headers: []string{"ursi", "session_num", "age"},
			cols:    defaults,
			want:    dataset.MergeKeys{PrimaryID: "ursi", SessionID: "session_num", CompositeID: "customID", IsLongitudinal: true},
		},
		{
			name:    "longitudinal composite defaults",
			headers: []string{"ursi", "session_num"},
			cols:    Columns{PrimaryID: "ursi", SessionID: "session_num"},
			want:    dataset.MergeKeys{PrimaryID: "ursi", SessionID: "session_num", CompositeID: FallbackPrimaryID, IsLongitudinal: true},
		},
		{
			name:    "cross-sectional",
			headers: []string{"ursi", "age", "sex"},
			cols:    defaults,
			want:    dataset.MergeKeys{PrimaryID: "ursi"},
		},
		{
			name:    "composite only",
			headers: []string{"customID", "age"},
			cols:    defaults,
			want:    dataset.MergeKeys{PrimaryID: "customID"},
		},
		{
			name:    "id-like column",
			headers: []string{"age", "Participant_ID", "sex"},
			cols:    defaults,
			want:    dataset.MergeKeys{PrimaryID: "Participant_ID"},
		},
		{
			name:    "configured name substring",
			headers: []string{"age", "URSI_code"},
			cols:    defaults,
			want:    dataset.MergeKeys{PrimaryID: "URSI_code"},
		},
		{
			name:    "fallback",
			headers: []string{"age", "sex"},
			cols:    defaults,
			want:    dataset.MergeKeys{PrimaryID: FallbackPrimaryID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.headers, tt.cols, discard())
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}

func TestDetect_FallbackLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	Detect([]string{"age"}, defaults, log)

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), FallbackPrimaryID)
}

func TestDetectFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demographics.csv")
	require.NoError(t, os.WriteFile(path, []byte("ursi,session_num,age\nS1,1,25\n"), 0o644))

	keys, err := DetectFile(path, defaults, discard())
	require.NoError(t, err)
	assert.True(t, keys.IsLongitudinal)
	assert.Equal(t, "customID", keys.MergeColumn())
}

func TestDetectFile_Missing(t *testing.T) {
	_, err := DetectFile(filepath.Join(t.TempDir(), "nope.csv"), defaults, discard())

	require.Error(t, err)
	assert.True(t, dataset.IsKind(err, dataset.DataAccessError))
}
