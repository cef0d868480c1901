package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/cliplog/internal/config"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level maps the -v count to a zerolog level.
func Level(verbose int) zerolog.Level {
	switch {
	case verbose <= 0:
		return zerolog.InfoLevel
	case verbose == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// New creates a zerolog logger writing to the console and, when cfg.File is
// set, to a size-rotated log file. The returned closer flushes the file.
func New(console io.Writer, verbose int, cfg config.LogConfig) (zerolog.Logger, io.Closer) {
	_, isFile := console.(*os.File)
	var writers []io.Writer
	writers = append(writers, zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.RFC3339,
		NoColor:    !isFile || color.NoColor,
	})

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		// Ensure directory exists
		os.MkdirAll(filepath.Dir(cfg.File), 0o755)

		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		writers = append(writers, file)
		closer = file
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(Level(verbose)).
		With().Timestamp().Logger()
	if verbose >= 2 {
		logger = logger.With().Caller().Logger()
	}
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
