// Package ratelimit implements per-token request limiting with fixed 60 s
// windows. State is process-local and lost on restart; the limit is an
// approximation, not a durable quota.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the fixed rate-limit window length.
const Window = 60 * time.Second

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Registry tracks one window per token id. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{windows: make(map[string]*window)}
}

// Allow consumes one request from the token's window. A limit <= 0 means
// unlimited. When the window has elapsed it resets to (0, now+60s) before
// counting, so the first request after resetAt is always accepted.
func (r *Registry) Allow(tokenID string, limit int) Result {
	if limit <= 0 {
		return Result{Allowed: true}
	}

	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[tokenID]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(Window)}
		r.windows[tokenID] = w
	}

	w.count++
	if w.count > limit {
		return Result{Allowed: false, Limit: limit, ResetAt: w.resetAt}
	}
	return Result{Allowed: true, Limit: limit, Remaining: limit - w.count, ResetAt: w.resetAt}
}

// EvictStale removes windows that expired before cutoff. Called periodically
// so tokens that stop sending traffic do not pin memory.
func (r *Registry) EvictStale(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, w := range r.windows {
		if w.resetAt.Before(cutoff) {
			delete(r.windows, id)
			evicted++
		}
	}
	return evicted
}
