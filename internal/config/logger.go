package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs the process logger. Warnings and errors always show;
// verbose runs get the full info/debug stream.
func NewLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return NewLoggerTo(os.Stderr, level)
}

// NewLoggerTo builds a console logger writing to w at the given level.
func NewLoggerTo(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
