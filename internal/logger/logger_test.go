package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncHandlerWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	handler := NewAsyncHandler(dir, slog.LevelInfo)
	log := slog.New(handler).With("conn", "abc")

	log.Info("page staged", "index", 3)
	log.Debug("filtered out")
	require.NoError(t, handler.Close())

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "page staged")
	assert.Contains(t, string(data), "conn=abc")
	assert.Contains(t, string(data), "index=3")
	assert.NotContains(t, string(data), "filtered out")
}

func TestAsyncHandlerWriteAfterClose(t *testing.T) {
	handler := NewAsyncHandler(t.TempDir(), slog.LevelDebug)
	require.NoError(t, handler.Close())
	require.NoError(t, handler.Close())

	assert.NotPanics(t, func() {
		slog.New(handler).Info("late line")
	})
}
