// Package obs bootstraps ToolDock's structured logging and exposes a small
// set of process-local counters. There is no external metrics backend:
// the spec leaves metrics storage/export unspecified (see DESIGN.md), so
// this package only keeps enough state to answer "how is this process
// doing" locally.
package obs

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// InitLogger configures the default slog logger. In production (json=true)
// it emits structured JSON lines; otherwise a human-readable text handler,
// mirroring the dev/prod split used throughout the retrieval pack.
func InitLogger(level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Counters tracks tool-call, tool-error, reload and install counts. It keeps
// no latency buckets, and no HTTP endpoint serves it. All fields are safe
// for concurrent use.
type Counters struct {
	ToolCalls    atomic.Int64
	ToolErrors   atomic.Int64
	ReloadCount  atomic.Int64
	InstallCount atomic.Int64
}

// Global is the process-wide counters instance. It is deliberately a
// package-level singleton: ToolDock runs as a single process per spec §5,
// so there is exactly one set of counters to maintain.
var Global = &Counters{}

// Snapshot is a point-in-time read of Counters for serialization.
type Snapshot struct {
	ToolCalls    int64 `json:"tool_calls"`
	ToolErrors   int64 `json:"tool_errors"`
	ReloadCount  int64 `json:"reload_count"`
	InstallCount int64 `json:"install_count"`
}

// Snapshot reads all counters atomically with respect to each other field
// (each individual field load is atomic; the set as a whole is a best-effort
// snapshot, which is all a debug endpoint needs).
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		ToolCalls:    c.ToolCalls.Load(),
		ToolErrors:   c.ToolErrors.Load(),
		ReloadCount:  c.ReloadCount.Load(),
		InstallCount: c.InstallCount.Load(),
	}
}
