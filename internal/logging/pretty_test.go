package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyHandlerHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("Level prefix and attributes", func(t *testing.T) {
		var buf bytes.Buffer
		handler := NewPrettyHandler(&buf, PrettyHandlerOptions{})

		record := slog.NewRecord(time.Now(), slog.LevelWarn, "alert queue full", 0)
		record.AddAttrs(slog.Int("capacity", 64), slog.Any("error", errors.New("dropped")))

		require.NoError(t, handler.Handle(ctx, record))
		output := buf.String()
		assert.Contains(t, output, "WARN:")
		assert.Contains(t, output, "alert queue full")
		assert.Contains(t, output, `"capacity":64`)
		assert.Contains(t, output, `"error":"dropped"`)
		assert.Regexp(t, `\[\d{2}:\d{2}:\d{2}\.\d{3}\]`, output)
	})

	t.Run("No attributes", func(t *testing.T) {
		var buf bytes.Buffer
		handler := NewPrettyHandler(&buf, PrettyHandlerOptions{})

		record := slog.NewRecord(time.Now(), slog.LevelInfo, "simple message", 0)
		require.NoError(t, handler.Handle(ctx, record))
		assert.Contains(t, buf.String(), "INFO:")
		assert.Contains(t, buf.String(), "{}")
	})

	t.Run("With attrs and group", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(NewPrettyHandler(&buf, PrettyHandlerOptions{}))

		logger.With("component", "ingest").WithGroup("doc").Info("processed", "id", 7)
		output := buf.String()
		assert.Contains(t, output, `"component":"ingest"`)
		assert.Contains(t, output, `"doc.id":7`)
	})
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(slog.LevelWarn, &buf)

	logger.Info("hidden")
	logger.Error("shown", "latency", 1500*time.Millisecond)

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, "ERROR:")
	assert.Contains(t, output, `"latency":"1.5s"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
