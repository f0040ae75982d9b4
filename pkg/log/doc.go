/*
Package log provides structured logging for Strata using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, a configurable level, and a handful
of package-level helpers for the common case of an unstructured
one-line message.

# Usage

Initializing the logger once at process start:

	import "github.com/stratadb/strata/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Subsystem constructors (wal.OpenWriter, txn.NewManager,
snapshot.NewCoordinator, ...) take a zerolog.Logger rather than
reaching for the package global directly, so tests can pass a logger
of their own; engine.Open builds its own "engine" component logger:

	walLog := log.WithComponent("wal")
	writer, err := wal.OpenWriter(dir, dbUUID, cfg, walLog)

# Design

Global Logger Pattern:
  - One package-level zerolog.Logger, set by Init.
  - Component loggers are children of it via WithComponent, carrying a
    "component" field into every subsequent log line.

Structured fields over string interpolation:
  - .Str/.Int/.Err instead of fmt.Sprintf into the message, so logs
    stay queryable.
*/
package log
