package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	l := Setup()
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug))

	t.Setenv("LOG_LEVEL", "error")
	l = Setup()
	assert.False(t, l.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, l.Enabled(context.Background(), slog.LevelError))

	t.Setenv("LOG_LEVEL", "")
	l = Setup()
	assert.False(t, l.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, l.Enabled(context.Background(), slog.LevelInfo))
}

func TestLReturnsConfiguredLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	configured := Setup()
	require.NotNil(t, configured)
	assert.Same(t, configured, L())
}
