/*
Package log provides structured logging for raftkit using zerolog.

It wraps zerolog to give every package a JSON- or console-formatted,
timestamped logger with a shared set of contextual helpers instead of
each package constructing its own zerolog.Logger by hand.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - zerolog instance                         │          │
	│  │  - initialized via log.Init()               │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console                  │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("raftnode")                │          │
	│  │  - WithPeer("node-2")                       │          │
	│  │  - WithTerm(7)                              │          │
	│  │  - WithRole("leader")                       │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("raftnode").With().Str("server_id", string(id)).Logger()
	logger.Info().Uint64("term", uint64(term)).Msg("became leader")

Every raftnode driver loop and transport adapter pulls its logger via
these helpers rather than calling zerolog directly, so a field like
"component" or "peer" is never spelled two different ways across the
codebase.
*/
package log
