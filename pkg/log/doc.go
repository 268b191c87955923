/*
Package log provides structured logging for burrow using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

burrow's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("oplog")                   │          │
	│  │  - WithActor(actorID)                       │          │
	│  │  - WithRemote("origin")                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "db",                       │          │
	│  │    "time": "2026-07-29T10:30:00Z",          │          │
	│  │    "message": "sync complete"               │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF sync complete component=db     │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all burrow packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithActor: Add the actor that produced an operation
  - WithRemote: Add the remote name a sync touched

# Usage

Initializing the Logger:

	import "github.com/cuemby/burrow/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("store opened")
	log.Debug("replaying unacked operations")
	log.Warn("remote unreachable, deferring push")
	log.Error("failed to decrypt operation")
	log.Fatal("cannot open store") // Exits process

Component Loggers:

	dbLog := log.WithComponent("db")
	dbLog.Info().Msg("update committed")

	actorLog := log.WithActor(actorID.String())
	actorLog.Debug().Msg("operation applied")

	remoteLog := log.WithRemote("origin")
	remoteLog.Info().Msg("sync complete")

# Security

Log Content:
  - Never log plaintext values, passphrases, or derived keys
  - Actor IDs and remote names are not secret and may be logged freely
  - Use structured fields (.Str, .Int) for anything that touches user data

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
