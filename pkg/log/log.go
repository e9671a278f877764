package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance every component logger derives
// from.
var Logger zerolog.Logger

// Level is a configured log verbosity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
}

// Init initializes the global logger. Call once at process startup,
// before any component logger is derived from Logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSONOutput {
		Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with component, the unit
// every broker component (election, gossip, webhook, api, ...) logs
// through so log lines can be filtered by subsystem.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithBrokerID returns a component logger additionally tagged with this
// process's broker id, for process-level lines where the component
// alone doesn't say which cluster member is speaking.
func WithBrokerID(component string, id int) zerolog.Logger {
	return Logger.With().Str("component", component).Int("broker_id", id).Logger()
}
