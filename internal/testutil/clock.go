// Package testutil provides deterministic stand-ins for the clock,
// id generation and logging the lifecycle manager takes as options.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// FixedClock returns a clock pinned to t0. Every call returns the
// same instant, so registry timestamps are stable across runs.
func FixedClock(t0 time.Time) func() time.Time {
	return func() time.Time { return t0 }
}

// SteppingClock returns a clock that starts at t0 and advances by
// step on every call. Use it when a test needs distinguishable
// Created timestamps.
//
// Thread-safety: safe for concurrent use via internal mutex.
func SteppingClock(t0 time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}

// SequentialIDs returns a generator yielding prefix1, prefix2, ...
// Replaces the manager's UUID generation so golden fixtures stay
// byte-identical.
//
// Thread-safety: safe for concurrent use via internal mutex.
func SequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
