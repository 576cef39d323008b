package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/johnayoung/crypto-candlesticks/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoggingConfig() config.LoggingConfig {
	cfg := config.DefaultConfig().Logging
	cfg.Level = "info"
	cfg.Format = "json"
	cfg.ContextFields = map[string]string{"service": "test"}
	return cfg
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("INFO"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestComponentLoggerCarriesRunContext(t *testing.T) {
	var buf bytes.Buffer
	lm := NewLoggerManagerWithWriter(testLoggingConfig(), &buf)

	ctx := NewRunContext(context.Background(), "BTCUSD", "1D")
	runID, _ := ctx.Value(RunIDKey).(string)
	_, err := uuid.Parse(runID)
	require.NoError(t, err)

	lm.WithComponentContext(ctx, "collector").Info("slice fetched", "records", 3)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "collector", lines[0]["component"])
	assert.Equal(t, runID, lines[0]["run_id"])
	assert.Equal(t, "BTCUSD", lines[0]["ticker"])
	assert.Equal(t, "1D", lines[0]["interval"])
	assert.Equal(t, "test", lines[0]["service"])
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	lm := NewLoggerManagerWithWriter(testLoggingConfig(), &buf)
	ctx := NewRunContext(context.Background(), "BTCUSD", "1D")
	cl := lm.WithComponentContext(ctx, "export")

	var tagged context.Context
	require.NoError(t, cl.LogOperation(ctx, "write_xlsx", func(ctx context.Context) error {
		tagged = ctx
		return nil
	}))
	assert.Equal(t, "write_xlsx", tagged.Value(OperationKey))
	assert.Nil(t, ctx.Value(OperationKey), "the caller's context is left alone")

	boom := errors.New("disk full")
	err := cl.LogOperation(ctx, "write_xlsx", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "operation completed", lines[0]["msg"])
	assert.Equal(t, "write_xlsx", lines[0]["operation"])
	assert.Equal(t, "export", lines[0]["component"])
	assert.Equal(t, "BTCUSD", lines[0]["ticker"])
	assert.Equal(t, "operation failed", lines[1]["msg"])
	assert.Equal(t, "disk full", lines[1]["error"])

	buf.Reset()
	lm.WithComponentContext(tagged, "storage").Info("tagged")
	lines = decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "write_xlsx", lines[0]["operation"])
}

func TestFileOutput(t *testing.T) {
	cfg := testLoggingConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "candlesticks.log")

	lm, err := NewLoggerManager(cfg)
	require.NoError(t, err)
	lm.WithComponentContext(context.Background(), "cli").Info("hello")
	require.NoError(t, lm.Close())

	assert.FileExists(t, cfg.FilePath)

	cfg.FilePath = ""
	_, err = NewLoggerManager(cfg)
	assert.Error(t, err)
}
