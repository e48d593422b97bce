package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// Throttle counts failed logins per (identity, origin) and locks the pair
// out once the limit is reached. Implementations must be safe for
// concurrent use.
type Throttle interface {
	IsLocked(ctx context.Context, identity, origin string) (bool, error)
	RecordFailure(ctx context.Context, identity, origin string) error
	Clear(ctx context.Context, identity, origin string) error
}

// ThrottleConfig configures lockout policy.
type ThrottleConfig struct {
	MaxFailures  int
	LockDuration time.Duration
}

func (c ThrottleConfig) withDefaults() ThrottleConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.LockDuration <= 0 {
		c.LockDuration = 15 * time.Minute
	}
	return c
}

var identityFolder = cases.Fold()

// throttleKey folds identity so "Alice" and "alice" share one counter.
func throttleKey(identity, origin string) string {
	return identityFolder.String(strings.TrimSpace(identity)) + "|" + origin
}

const memoryThrottleSweepAt = 10000

type failureRecord struct {
	failures    int
	lockedUntil time.Time
	lastFailure time.Time
}

// MemoryThrottle keeps counters in process memory. Expired locks are
// dropped lazily when read.
type MemoryThrottle struct {
	mu      sync.Mutex
	cfg     ThrottleConfig
	entries map[string]*failureRecord
	now     func() time.Time
}

// NewMemoryThrottle constructs a MemoryThrottle. now may be nil.
func NewMemoryThrottle(cfg ThrottleConfig, now func() time.Time) *MemoryThrottle {
	if now == nil {
		now = time.Now
	}
	return &MemoryThrottle{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*failureRecord),
		now:     now,
	}
}

// IsLocked reports whether the pair is currently locked out.
func (t *MemoryThrottle) IsLocked(_ context.Context, identity, origin string) (bool, error) {
	key := throttleKey(identity, origin)
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.entries[key]
	if !ok || rec.lockedUntil.IsZero() {
		return false, nil
	}
	if !t.now().Before(rec.lockedUntil) {
		delete(t.entries, key)
		return false, nil
	}
	return true, nil
}

// RecordFailure counts one failure. Reaching the limit starts a lock and
// resets the counter.
func (t *MemoryThrottle) RecordFailure(_ context.Context, identity, origin string) error {
	key := throttleKey(identity, origin)
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= memoryThrottleSweepAt {
		t.sweep(now)
	}

	rec, ok := t.entries[key]
	if !ok {
		rec = &failureRecord{}
		t.entries[key] = rec
	}
	switch {
	case !rec.lockedUntil.IsZero() && !now.Before(rec.lockedUntil):
		*rec = failureRecord{}
	case rec.lockedUntil.IsZero() && rec.failures > 0 && now.Sub(rec.lastFailure) >= t.cfg.LockDuration:
		// Stale counters age out after one lock window, like the Redis TTL.
		*rec = failureRecord{}
	}
	rec.failures++
	rec.lastFailure = now
	if rec.failures >= t.cfg.MaxFailures {
		rec.lockedUntil = now.Add(t.cfg.LockDuration)
		rec.failures = 0
	}
	return nil
}

// Clear forgets all failures for the pair.
func (t *MemoryThrottle) Clear(_ context.Context, identity, origin string) error {
	key := throttleKey(identity, origin)
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
	return nil
}

// sweep drops records that are neither locked nor recently failing.
func (t *MemoryThrottle) sweep(now time.Time) {
	for key, rec := range t.entries {
		if now.Before(rec.lockedUntil) {
			continue
		}
		if now.Sub(rec.lastFailure) >= t.cfg.LockDuration {
			delete(t.entries, key)
		}
	}
}

var _ Throttle = (*MemoryThrottle)(nil)
