package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// sweepThreshold is the number of tracked keys above which expired windows
// are dropped on the next call.
const sweepThreshold = 10_000

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Key      string
	Current  int
	Limit    int
	Reason   string
}

// Check compares the current count against the rate limit.
func Check(count int, limit Limit) CheckResult {
	if !limit.Enabled() {
		return CheckResult{}
	}
	if count >= limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return CheckResult{}
}

type window struct {
	start time.Time
	count int
}

// Limiter tracks one window per key. Safe for concurrent use.
type Limiter struct {
	limit Limit
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a limiter, or nil when limit is not enabled.
func New(limit Limit, opts ...Option) *Limiter {
	if !limit.Enabled() {
		return nil
	}
	l := &Limiter{limit: limit, now: time.Now, windows: make(map[string]*window)}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Allow counts one request for key. When the key's window is full the
// request is not counted and the result reports Exceeded. A nil Limiter
// allows everything.
func (l *Limiter) Allow(key string) CheckResult {
	if l == nil {
		return CheckResult{}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.windows) > sweepThreshold {
		l.sweep(now)
	}
	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.limit.Window {
		w = &window{start: now}
		l.windows[key] = w
	}

	res := Check(w.count, l.limit)
	if res.Exceeded {
		res.Key = key
		return res
	}
	w.count++
	return res
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.limit.Window {
			delete(l.windows, k)
		}
	}
}
