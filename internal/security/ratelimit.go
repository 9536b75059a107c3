package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client exceeds its allowance.
var ErrRateLimited = errors.New("rate limit exceeded")

// sweepThreshold is the client count above which Allow drops idle clients.
const sweepThreshold = 1024

// RateLimiter is a per-client sliding window limiter.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter allows each client limit events per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records one event for client, or returns ErrRateLimited when the
// client already used its allowance inside the window.
func (rl *RateLimiter) Allow(client string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	if len(rl.clients) > sweepThreshold {
		for c, events := range rl.clients {
			if len(events) == 0 || events[len(events)-1].Before(cutoff) {
				delete(rl.clients, c)
			}
		}
	}

	events := evict(rl.clients[client], cutoff)
	if len(events) >= rl.limit {
		rl.clients[client] = events
		return ErrRateLimited
	}
	rl.clients[client] = append(events, now)
	return nil
}

// RetryAfter reports how long client must wait before its next event is
// allowed. Zero means now.
func (rl *RateLimiter) RetryAfter(client string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	events := evict(rl.clients[client], now.Add(-rl.window))
	if len(events) < rl.limit {
		return 0
	}
	return events[0].Add(rl.window).Sub(now)
}

// evict drops events older than cutoff. Events are chronological.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
