/*
Package log provides structured logging for loom using zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with component-specific loggers, configurable log levels, and
helper functions for common logging patterns. All logs include
timestamps and support filtering by severity level.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Debug().Str("action_id", id).Msg("Action marked dirty")

Context helpers:

	log.WithSpace(space).Info().Msg("Replica opened")
	log.WithEntity(id).Debug().Msg("Fact loaded")

# Integration Points

  - pkg/replica: commit application and conflicts
  - pkg/transaction: commit/abort lifecycle
  - pkg/scheduler: dirty propagation and drains
  - pkg/cfc: dry-run violation telemetry
  - cmd/loom: CLI-level initialisation

# Design Patterns

Global logger pattern: a single package-level Logger initialised once
at process start, with child loggers carrying structured context
fields. Use typed fields (.Str, .Int, .Err) rather than string
concatenation so logs stay queryable.
*/
package log
