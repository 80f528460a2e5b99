package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction. Zero value gives info-level JSON on stdout.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "pretty"
	Out    io.Writer
}

// New creates a zerolog logger tagged with the service name.
func New(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	// Pretty console output is meant for local development only
	if opts.Format == "pretty" || os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			Level(level).
			With().
			Timestamp().
			Caller().
			Str("service", "company-wiki-api").
			Logger()
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "company-wiki-api").
		Logger()
}

// FromEnv builds a logger from LOG_LEVEL and LOG_FORMAT. Used before
// configuration is loaded so that config errors are still structured.
func FromEnv() zerolog.Logger {
	return New(Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
}
