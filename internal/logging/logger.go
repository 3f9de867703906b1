package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnvVar names the environment variable read by Init when no explicit
// level is given.
const LevelEnvVar = "MENTOR_LOG_LEVEL"

// Init initializes the global logger. level is one of trace, debug, info,
// warn, error; an empty level falls back to MENTOR_LOG_LEVEL and then info.
// Logs go to stderr so stdout stays clean for command output.
func Init(level string) {
	if level == "" {
		level = os.Getenv(LevelEnvVar)
	}
	zerolog.SetGlobalLevel(ParseLevel(level))

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
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
	default:
		return zerolog.InfoLevel
	}
}
