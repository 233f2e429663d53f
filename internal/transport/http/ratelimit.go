package http

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const rateWindow = time.Minute

// rateLimiter admits at most limit messages in any sliding one-minute window.
type rateLimiter struct {
	mu    sync.Mutex
	clock clock.Clock
	limit int
	sent  []time.Time
}

func newRateLimiter(clk clock.Clock, limit int) *rateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &rateLimiter{clock: clk, limit: limit}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	cutoff := now.Add(-rateWindow)
	keep := r.sent[:0]
	for _, ts := range r.sent {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	r.sent = keep

	if len(r.sent) >= r.limit {
		return false
	}
	r.sent = append(r.sent, now)
	return true
}
