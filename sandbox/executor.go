// Package sandbox runs untrusted code snippets under CPU/memory/time/
// network caps and returns a structured SandboxReport. Implementations
// probe the isolation runtime's availability at construction time,
// never at invocation time, and guarantee cleanup on every exit path.
package sandbox

import (
	"context"
	"time"

	fame "github.com/fame-ai/orchestrator"
)

// Limits are the mandatory resource caps for one invocation.
type Limits struct {
	WallTimeout time.Duration
	MemoryCap   int64 // bytes
	CPUShare    float64
	NetworkOK   bool // true = network allowed; default false (denied)

	// RequireIsolation is set by the caller (normally derived from the
	// Safety Gate's policy table) when the invoking capability's policy
	// demands real process isolation. A development-only executor that
	// cannot provide isolation MUST refuse when this is true.
	RequireIsolation bool
}

// DefaultLimits returns the baseline resource caps applied when a
// caller does not specify its own.
func DefaultLimits() Limits {
	return Limits{
		WallTimeout: 30 * time.Second,
		MemoryCap:   512 * 1024 * 1024,
		CPUShare:    0.5,
		NetworkOK:   false,
	}
}

// state is the internal lifecycle; only the terminated state is
// observable to callers. It is tracked for logging/telemetry only and
// never returned to the caller directly.
type state string

const (
	stateIdle       state = "idle"
	statePreparing  state = "preparing"
	stateRunning    state = "running"
	stateCollecting state = "collecting"
	stateTerminated state = "terminated"
)

// maxCapturedBytes bounds stdout/stderr capture at 64 KiB each.
const maxCapturedBytes = 64 * 1024

// Executor is the sandbox contract every backend implements.
type Executor interface {
	// Run executes codeBlob (source in language) under limits and
	// returns a SandboxReport. Run never panics; all failure modes are
	// represented in the returned report or error.
	Run(ctx context.Context, codeBlob, language string, limits Limits) (*fame.SandboxReport, error)

	// Available reports whether this executor can currently provide
	// real process isolation.
	Available() bool
}

func truncate(b []byte) (string, bool) {
	if len(b) > maxCapturedBytes {
		return string(b[:maxCapturedBytes]), true
	}
	return string(b), false
}
