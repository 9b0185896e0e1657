// Package throttle limits how often a repeated action, such as a progress
// log line, is allowed to happen.
package throttle

import (
	"sync"
	"time"
)

// Throttle allows one action per interval and is safe for concurrent use.
// A zero interval allows every action.
type Throttle struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
	now         func() time.Time
}

// New creates a Throttle with the given interval
func New(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether the action may happen now. When it returns true the
// current time is recorded as the last allowed time.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.lastAllowed.IsZero() || now.Sub(t.lastAllowed) >= t.interval {
		t.lastAllowed = now
		return true
	}
	return false
}

// AllowOrFinal is Allow, except that final actions are always allowed
func (t *Throttle) AllowOrFinal(final bool) bool {
	if final {
		t.mu.Lock()
		t.lastAllowed = t.now()
		t.mu.Unlock()
		return true
	}
	return t.Allow()
}

// Reset clears the state so the next action is allowed immediately
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.lastAllowed = time.Time{}
	t.mu.Unlock()
}

// Interval returns the configured interval
func (t *Throttle) Interval() time.Duration {
	return t.interval
}
