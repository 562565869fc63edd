package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Rotation policy for the file sink. Not configurable; the log
	// file is an operational convenience, not an archive.
	fileMaxSizeMB = 100
	fileMaxAge    = 7 // days
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	File   string // log file path; empty disables the file sink
	Pretty bool   // human-readable console format
}

// Logger owns the configured sinks. Close releases the log file when
// one is open.
type Logger struct {
	logger zerolog.Logger
	file   io.WriteCloser
}

// Setup builds the process logger and installs it as the zerolog
// global. Console is always on; a rotating file sink is added when
// File is set. All output passes through the redactor so credentials
// that sneak into payloads never land in logs.
func Setup(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var consoleWriter io.Writer = os.Stdout
	if cfg.Pretty {
		consoleWriter = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	writers := []io.Writer{consoleWriter}

	var file io.WriteCloser
	if cfg.File != "" {
		rw, err := NewRotatingWriter(cfg.File, fileMaxSizeMB, fileMaxAge, true)
		if err != nil {
			return nil, err
		}
		file = rw
		writers = append(writers, rw)
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}
	writer = NewRedactor().Wrap(writer)

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Set global logger
	log.Logger = logger

	return &Logger{
		logger: logger,
		file:   file,
	}, nil
}

// Zerolog returns the configured logger for injection into components.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Close closes the log file when one is open
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
