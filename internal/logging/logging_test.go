package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	assert.False(t, Logger().Enabled(t.Context(), slog.LevelError))
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { SetLogger(nil) })

	Logger().Warn("forced implementation not usable", "family", "gemm")
	assert.Contains(t, buf.String(), "family=gemm")

	SetLogger(nil)
	Logger().Warn("dropped")
	assert.NotContains(t, buf.String(), "dropped")
}
