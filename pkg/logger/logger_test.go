package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/taxico2/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel zerolog.Level
	}{
		{"debug level", "debug", zerolog.DebugLevel},
		{"info level", "info", zerolog.InfoLevel},
		{"warn level", "warn", zerolog.WarnLevel},
		{"error level", "error", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(&config.Config{Env: "test", LogLevel: tt.level, LogFormat: "json"})
			require.NotNil(t, log)
			assert.Equal(t, tt.wantLevel, zerolog.GlobalLevel())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestNewForComponentWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Env: "test", LogLevel: "info", LogFormat: "json", LogDir: dir}

	log, err := NewForComponent(cfg, "clean")
	require.NoError(t, err)

	log.WithField("table", "yellow_trips_2024").Info("removed duplicates")
	log.Debug("filtered out by level")
	require.NoError(t, log.Close())

	f, err := os.Open(filepath.Join(dir, "clean.log"))
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}

	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "clean", entries[0]["component"])
	assert.Equal(t, "yellow_trips_2024", entries[0]["table"])
	assert.NotEmpty(t, entries[0]["run_id"])
	assert.NotEmpty(t, entries[0]["time"])
}

func TestWithFieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log := &Logger{zlog: zerolog.New(&buf)}

	log.WithFields(map[string]interface{}{
		"table":   "green_trips_all",
		"removed": 12,
	}).WithError(errors.New("boom")).Error("step failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "green_trips_all", entry["table"])
	assert.Equal(t, float64(12), entry["removed"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "step failed", entry["message"])
}

func TestNopAndClose(t *testing.T) {
	log := Nop()
	log.Info("nothing")
	assert.NoError(t, log.Close())
}
