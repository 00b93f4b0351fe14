package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		checkFunc func(t *testing.T, logger *Logger, output *bytes.Buffer)
	}{
		{
			name:   "json format with debug level",
			config: Config{Level: "debug", Format: "json"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Debug("action started", slog.String("action", "parse_ingredient"))

				var logEntry map[string]interface{}
				require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))

				assert.Equal(t, "DEBUG", logEntry["level"])
				assert.Equal(t, "action started", logEntry["msg"])
				assert.Equal(t, "parse_ingredient", logEntry["action"])
				assert.Contains(t, logEntry, "time")
			},
		},
		{
			name:   "json format filters below warn",
			config: Config{Level: "warn", Format: "json"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("info message")
				logger.Warn("broadcast failed", slog.String("note_id", "note-1"))

				lines := strings.Split(strings.TrimSpace(output.String()), "\n")
				assert.Len(t, lines, 1)

				var logEntry map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(lines[0]), &logEntry))
				assert.Equal(t, "WARN", logEntry["level"])
				assert.Equal(t, "note-1", logEntry["note_id"])
			},
		},
		{
			name:   "console format",
			config: Config{Level: "info", Format: "console", NoColor: true, TimeFormat: time.RFC3339},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("console test")

				// tint abbreviates levels
				logOutput := output.String()
				assert.Contains(t, logOutput, "INF")
				assert.Contains(t, logOutput, "console test")
			},
		},
		{
			name:   "with source location enabled",
			config: Config{Level: "info", Format: "json", EnableSource: true},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("message with source")

				var logEntry map[string]interface{}
				require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))

				source := logEntry["source"].(map[string]interface{})
				assert.Contains(t, source, "function")
				assert.Contains(t, source, "file")
				assert.Contains(t, source, "line")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			cfg := tt.config
			cfg.writer = output

			logger, err := New(&cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)

			tt.checkFunc(t, logger, output)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("written to file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNew_FileOutputError(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
	assert.NoError(t, logger.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelInfo}, // case-sensitive
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_WithHelpers(t *testing.T) {
	output := &bytes.Buffer{}

	logger, err := New(&Config{Level: "info", Format: "json", writer: output})
	require.NoError(t, err)

	logger.WithGroup("job").
		WithAttrs(slog.String("queue", "ingredient")).
		With(slog.Int("attempt", 2)).
		Info("job received", slog.Any("error", errors.New("boom")))

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))

	group := logEntry["job"].(map[string]interface{})
	assert.Equal(t, "ingredient", group["queue"])
	assert.Equal(t, float64(2), group["attempt"])
	assert.Equal(t, "boom", group["error"])
}

func TestNewDiscard(t *testing.T) {
	l := NewDiscard()
	require.NotNil(t, l)
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}
