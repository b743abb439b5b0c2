// Package logging configures the zerolog logger shared by the client packages.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up the global logger. Output goes to w as human-readable console
// lines; a nil w means stderr.
func Init(w io.Writer, level string) {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339
	lvl := ParseLevel(level)
	zerolog.SetGlobalLevel(lvl)

	ctx := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp()
	if lvl == zerolog.TraceLevel {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}

// ParseLevel maps a level name to a zerolog level. Unknown names fall back
// to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child of the global logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
