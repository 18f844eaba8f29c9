package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps the log in process memory. Suitable for a single
// replica and for tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	rule    Rule
	now     Clock
	entries map[string][]time.Time
	swept   time.Time
}

// NewMemoryLimiter constructs the limiter. A nil clock uses time.Now.
func NewMemoryLimiter(rule Rule, clock Clock) (*MemoryLimiter, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLimiter{rule: rule, now: clock, entries: make(map[string][]time.Time)}, nil
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, identity, endpoint string) (Decision, error) {
	k, err := key(identity, endpoint)
	if err != nil {
		return Decision{}, err
	}
	now := l.now()
	cutoff := now.Add(-l.rule.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now, cutoff)

	history := l.entries[k]
	kept := history[:0]
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.rule.Limit {
		l.entries[k] = kept
		retry := kept[0].Add(l.rule.Window).Sub(now)
		if retry < time.Millisecond {
			retry = time.Millisecond
		}
		return Decision{Limit: l.rule.Limit, RetryAfter: retry}, nil
	}
	l.entries[k] = append(kept, now)
	return Decision{
		Allowed:   true,
		Limit:     l.rule.Limit,
		Remaining: l.rule.Limit - len(kept) - 1,
	}, nil
}

// sweepLocked drops logs whose newest entry left the window, at most once
// per window.
func (l *MemoryLimiter) sweepLocked(now, cutoff time.Time) {
	if now.Sub(l.swept) < l.rule.Window {
		return
	}
	l.swept = now
	for k, history := range l.entries {
		if len(history) == 0 || !history[len(history)-1].After(cutoff) {
			delete(l.entries, k)
		}
	}
}

func (l *MemoryLimiter) keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
