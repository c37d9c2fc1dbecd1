package logger

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRFC3339Millis(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 7, 9, 123_456_789, time.FixedZone("X", 3600))
	assert.Equal(t, "2024-03-05T13:07:09.123Z", formatRFC3339Millis(ts))
}

func TestNew_VerboseLevels(t *testing.T) {
	var buf bytes.Buffer

	New(&buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	New(&buf, true).Debug("shown", "table", "demographics", "empty", "")
	out := buf.String()
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "demographics")
	assert.NotContains(t, out, "empty=")
}

func TestOrDefault(t *testing.T) {
	assert.Same(t, slog.Default(), OrDefault(nil))
	l := New(&bytes.Buffer{}, false)
	assert.Same(t, l, OrDefault(l))
}
