/*
Package log provides structured logging for beacon using zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with component-tagged child loggers and configurable log
levels, so every broker component logs through one configured sink
instead of each importing zerolog directly.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("election")                │          │
	│  │  - WithComponent("gossip")                  │          │
	│  │  - WithBrokerID("broker", 2)                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                             │          │
	│  │  JSON Format:                               │          │
	│  │  {                                          │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "election",                 │          │
	│  │    "time": "2026-07-30T10:30:00Z",          │          │
	│  │    "message": "starting election"           │          │
	│  │  }                                          │          │
	│  │                                             │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF starting election              │          │
	│  │          component=election                 │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init() before any child is derived
  - Thread-safe concurrent writes

Log Levels:
  - Debug: per-connection stream attach/detach, election bookkeeping
  - Info: elections, leadership changes, process lifecycle
  - Warn: peer RPC failures, suspect peers, dropped pushes
  - Error: payload encoding failures

Context Loggers:
  - WithComponent: tag every line with the emitting subsystem
    (election, gossip, api, webhook, fanout, broker)
  - WithBrokerID: component plus this process's broker id, for
    process-level lines where the component alone doesn't say which
    cluster member is speaking

# Usage

Initializing at process startup (cmd/beacon does this from the
--log-level and --log-json flags):

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

Component loggers:

	logger := log.WithComponent("election")
	logger.Info().Int("leader_id", 3).Msg("leader updated")

	logger = log.WithBrokerID("broker", 2)
	logger.Info().Str("addr", ":5001").Msg("starting broker")

# See Also

  - pkg/metrics for the numeric counterpart to these log lines
  - https://github.com/rs/zerolog for the underlying library
*/
package log
