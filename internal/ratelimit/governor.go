// Package ratelimit implements the client-side sliding-window governor that
// keeps outbound AI calls under a fixed budget per window, shared by every
// caller of the same store.
package ratelimit

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/zombor/bill-analyzer/internal/storage"
)

const (
	// MaxRequests is the number of requests allowed inside one Window.
	MaxRequests = 5
	// Window is the length of the sliding window.
	Window = 5 * time.Minute
)

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Governor is a strict sliding-window request counter over a persisted log
// of request timestamps (milliseconds since epoch).
type Governor struct {
	kv         storage.KV
	timeSource TimeSource
	mu         sync.Mutex
}

// NewGovernor creates a Governor backed by kv
func NewGovernor(kv storage.KV) *Governor {
	return NewGovernorWithDeps(kv, defaultTimeSource{})
}

// NewGovernorWithDeps creates a Governor with a custom time source for testing
func NewGovernorWithDeps(kv storage.KV, timeSrc TimeSource) *Governor {
	return &Governor{kv: kv, timeSource: timeSrc}
}

// CheckLimit reports whether a new request may be made now.
func (g *Governor) CheckLimit() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	data, err := g.kv.Get(storage.KeyRateLimit)
	if err != nil {
		slog.Error("Could not read request timestamps", "error", err)
		return Decision{Allowed: true}
	}
	now := g.now()
	return decide(prune(decodeTimestamps(data), now), now)
}

// RecordRequest appends the current time to the log, dropping entries that
// have aged out of the window.
func (g *Governor) RecordRequest() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	err := g.kv.Update(storage.KeyRateLimit, func(current []byte) ([]byte, error) {
		timestamps := append(decodeTimestamps(current), now)
		return json.Marshal(prune(timestamps, now))
	})
	if err != nil {
		slog.Error("Could not record request timestamp", "error", err)
	}
}

// Reserve checks the limit and, when allowed, records the request in the
// same store transaction.
func (g *Governor) Reserve() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	decision := Decision{Allowed: true}
	err := g.kv.Update(storage.KeyRateLimit, func(current []byte) ([]byte, error) {
		timestamps := prune(decodeTimestamps(current), now)
		decision = decide(timestamps, now)
		if !decision.Allowed {
			return nil, nil
		}
		return json.Marshal(append(timestamps, now))
	})
	if err != nil {
		slog.Error("Could not reserve request slot", "error", err)
		return Decision{Allowed: true}
	}
	return decision
}

func (g *Governor) now() int64 {
	return g.timeSource.Now().UnixMilli()
}

func decide(recent []int64, now int64) Decision {
	if len(recent) < MaxRequests {
		return Decision{Allowed: true}
	}
	oldest := recent[0]
	for _, ts := range recent[1:] {
		if ts < oldest {
			oldest = ts
		}
	}
	waitMillis := oldest + Window.Milliseconds() - now
	return Decision{
		Allowed:           false,
		RetryAfterSeconds: int((waitMillis + 999) / 1000),
	}
}

// prune keeps the timestamps younger than Window, preserving order.
func prune(timestamps []int64, now int64) []int64 {
	recent := make([]int64, 0, len(timestamps))
	for _, ts := range timestamps {
		if now-ts < Window.Milliseconds() {
			recent = append(recent, ts)
		}
	}
	return recent
}

// decodeTimestamps treats an absent or corrupt log as empty.
func decodeTimestamps(data []byte) []int64 {
	if len(data) == 0 {
		return nil
	}
	var timestamps []int64
	if err := json.Unmarshal(data, &timestamps); err != nil {
		slog.Error("Could not read timestamps, resetting log", "error", err)
		return nil
	}
	return timestamps
}
