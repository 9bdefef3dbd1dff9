// Package logger builds the application logger backed by zerolog.
//
// The application log is a JSON file the console can page through and clear;
// a human-readable copy can additionally go to stderr.
//
//	TRACE (-1) → DEBUG (0) → INFO (1) → WARN (2) → ERROR (3)
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFile is the application log path used when none is configured.
const DefaultFile = "application.log"

// Options controls logger behaviour.
type Options struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Defaults to "info" when empty or unrecognised.
	Level string `yaml:"level"`
	// File is the application log path.
	File string `yaml:"file"`
	// Console mirrors log lines to stderr in human-friendly form.
	Console bool `yaml:"console"`
}

// New opens the application log and returns a logger writing to it. The
// returned closer closes the file.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	if opts.File == "" {
		opts.File = DefaultFile
	}
	f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log %s: %w", opts.File, err)
	}

	var out io.Writer = f
	if opts.Console {
		out = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return build(out, opts.Level), f, nil
}

func build(out io.Writer, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(out).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// parseLevel converts a string to a zerolog.Level.
//
//	"trace" → TraceLevel (-1)
//	"debug" → DebugLevel ( 0)
//	"info"  → InfoLevel  ( 1)  ← default
//	"warn"  → WarnLevel  ( 2)
//	"error" → ErrorLevel ( 3)
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
