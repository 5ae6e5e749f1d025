package gateway

import (
	"sync"
	"time"
)

// locationWindow is the minimum spacing between accepted location
// updates per user. The sampler may run faster; rejected updates are
// dropped silently because the next sample supersedes them anyway.
const locationWindow = time.Second

// rateLimiter tracks the last accepted update per key. Keys are user
// ids, so two connections of one user share the budget.
type rateLimiter struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
	clock  func() time.Time
}

func newRateLimiter(window time.Duration, clock func() time.Time) *rateLimiter {
	if window <= 0 {
		window = locationWindow
	}
	if clock == nil {
		clock = time.Now
	}
	return &rateLimiter{
		last:   make(map[string]time.Time),
		window: window,
		clock:  clock,
	}
}

// Allow reports whether an update may be accepted now, and records the
// acceptance when it is.
func (r *rateLimiter) Allow(key string) bool {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.last[key]; ok && now.Sub(last) < r.window {
		return false
	}
	r.last[key] = now
	return true
}

// Forget releases the key when its user disconnects.
func (r *rateLimiter) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, key)
}
