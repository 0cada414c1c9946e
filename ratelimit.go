package transcache

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter caps outbound provider calls with a sliding window over the
// trailing minute and the trailing hour. One limiter is shared by every
// caller of an engine; it throttles aggregate load, not individual users.
type RateLimiter struct {
	perMinute  int
	perHour    int
	timestamps []time.Time // ascending
	now        func() time.Time
	mu         sync.Mutex
}

// RateLimitConfig configures the rate limiter. A limit of zero or less disables that window.
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
}

// Decision is the outcome of TryAcquire.
type Decision struct {
	Allowed bool
	Reason  string // Set when denied
}

// Err returns a *RateLimitError for a denied decision, nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &RateLimitError{Reason: d.Reason}
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		perMinute: cfg.RequestsPerMinute,
		perHour:   cfg.RequestsPerHour,
		now:       time.Now,
	}
}

// TryAcquire records one outbound call if both windows have room.
// Pruning, counting, and recording happen in one critical section.
func (r *RateLimiter) TryAcquire() Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.prune(now)

	if r.perMinute > 0 && r.countSince(now.Add(-time.Minute)) >= r.perMinute {
		return Decision{Reason: fmt.Sprintf("rate limit exceeded: %d requests per minute", r.perMinute)}
	}
	if r.perHour > 0 && len(r.timestamps) >= r.perHour {
		return Decision{Reason: fmt.Sprintf("rate limit exceeded: %d requests per hour", r.perHour)}
	}

	r.timestamps = append(r.timestamps, now)
	return Decision{Allowed: true}
}

// Prune drops timestamps older than one hour.
func (r *RateLimiter) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(r.now())
}

// Usage returns the number of calls recorded in the trailing minute and hour.
func (r *RateLimiter) Usage() (minute, hour int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.prune(now)
	return r.countSince(now.Add(-time.Minute)), len(r.timestamps)
}

// prune must be called with lock held.
func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(r.timestamps) && !r.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.timestamps = append(r.timestamps[:0], r.timestamps[i:]...)
	}
}

// countSince must be called with lock held.
func (r *RateLimiter) countSince(cutoff time.Time) int {
	n := 0
	for i := len(r.timestamps) - 1; i >= 0 && r.timestamps[i].After(cutoff); i-- {
		n++
	}
	return n
}
