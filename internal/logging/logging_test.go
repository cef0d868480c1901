package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audiolibrelab/cliplog/internal/config"
	"github.com/rs/zerolog"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		verbose int
		want    zerolog.Level
	}{
		{-1, zerolog.InfoLevel},
		{0, zerolog.InfoLevel},
		{1, zerolog.DebugLevel},
		{2, zerolog.TraceLevel},
		{5, zerolog.TraceLevel},
	}
	for _, tt := range tests {
		if got := Level(tt.verbose); got != tt.want {
			t.Errorf("Level(%d) = %s, want %s", tt.verbose, got, tt.want)
		}
	}
}

func TestNew_ConsoleFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(&buf, 0, config.LogConfig{})
	defer closer.Close()

	logger.Debug().Msg("hidden")
	logger.Info().Int("clip", 3).Msg("Clip saved")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Debug message written at info level")
	}
	if !strings.Contains(out, "Clip saved") || !strings.Contains(out, "clip=3") {
		t.Errorf("Expected info message with field, got %q", out)
	}
}

func TestNew_WritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cliplog.log")
	var buf bytes.Buffer

	logger, closer := New(&buf, 1, config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1})
	logger.Debug().Str("run_id", "abc").Msg("Recording started")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"run_id":"abc"`) {
		t.Errorf("Expected JSON log line in file, got %q", data)
	}
}
