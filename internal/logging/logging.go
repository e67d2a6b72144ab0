// Package logging builds the zerolog root logger shared by all components.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger for the given environment.  Development ("dev",
// "local") writes human friendly console output; every other environment
// writes JSON lines to stdout.  Unknown levels fall back to info.
func New(env, level string) zerolog.Logger {
	var w io.Writer = os.Stdout
	switch strings.ToLower(env) {
	case "dev", "local":
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str("service", "ticketsys").
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
