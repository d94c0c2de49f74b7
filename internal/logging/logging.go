package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func levelFromString(l string) zerolog.Level {
	switch strings.ToLower(l) {
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

// Setup configures the global zerolog logger. DEV gets a human readable console writer,
// everything else emits JSON to stdout.
func Setup(env, level string) zerolog.Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(env, "DEV") {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(w).Level(levelFromString(level)).With().Timestamp().Logger()
	return log.Logger
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
