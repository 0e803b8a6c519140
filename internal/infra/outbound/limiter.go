package outbound

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks until a send is allowed. *rate.Limiter satisfies it, as
// does the redis-backed shared limiter.
type Limiter interface {
	Wait(ctx context.Context) error
}

type chatLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// chatLimiters hands out one token bucket per chat and forgets buckets that
// have not been used for idleTTL.
type chatLimiters struct {
	rps     rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	entries map[int64]*chatLimiterEntry
}

func newChatLimiters(rps float64, burst int, idleTTL time.Duration) *chatLimiters {
	lim := rate.Limit(rps)
	if rps <= 0 {
		lim = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &chatLimiters{rps: lim, burst: burst, idleTTL: idleTTL, entries: make(map[int64]*chatLimiterEntry)}
}

func (c *chatLimiters) get(chatID int64) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[chatID]
	if !ok {
		e = &chatLimiterEntry{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.entries[chatID] = e
	}
	e.lastUsed.Store(time.Now().UnixNano())
	return e.limiter
}

func (c *chatLimiters) cleanup(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	threshold := now.Add(-c.idleTTL).UnixNano()
	n := 0
	for id, e := range c.entries {
		if e.lastUsed.Load() < threshold {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

func (c *chatLimiters) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// NewGlobalLimiter builds the process-wide token bucket.
func NewGlobalLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
