package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("Debug")
	require.NoError(t, err)
	assert.Equal(t, Debug, lvl)

	lvl, err = ParseLogLevel("bogus")
	assert.Error(t, err)
	assert.Equal(t, Warning, lvl)
}

func TestLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("usage-worker", Info)
	l.SetOutput(&buf)

	l.Debug("hidden")
	l.Info("flushed batch", "records", 25)

	child := l.With("queue", "usage_records")
	child.Error("write failed", "attempt", 3, "dangling")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[usage-worker]")
	assert.Contains(t, out, "[INFO] flushed batch records=25")
	assert.Contains(t, out, "[ERROR] write failed queue=usage_records attempt=3 dangling=<missing>")
}

func TestLogger_WithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("tiers", Error)
	l.SetOutput(&buf)
	child := l.With("source", "redis")

	child.Warn("suppressed")
	l.SetLogLevel(Warning)
	child.Warn("visible")

	assert.NotContains(t, buf.String(), "suppressed")
	assert.Contains(t, buf.String(), "visible source=redis")
}
