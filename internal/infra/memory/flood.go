package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tg-bot-italian/internal/application"
)

var _ application.FloodLimiter = (*FloodLimiter)(nil)

type floodEntry struct {
	limiter  *rate.Limiter
	warned   bool
	lastSeen time.Time
}

// FloodLimiter gives every chat a token bucket refilled at perMinute/60 per
// second with a burst of perMinute. The first rejection after a run of
// allowed updates is a warning, later ones are silent drops.
type FloodLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	entries map[int64]*floodEntry
}

func NewFloodLimiter(perMinute int) *FloodLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	return &FloodLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		now:     time.Now,
		entries: make(map[int64]*floodEntry),
	}
}

func (f *FloodLimiter) Allow(_ context.Context, chatID int64) (application.FloodDecision, error) {
	now := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[chatID]
	if !ok {
		e = &floodEntry{limiter: rate.NewLimiter(f.limit, f.burst)}
		f.entries[chatID] = e
	}
	e.lastSeen = now
	if e.limiter.AllowN(now, 1) {
		e.warned = false
		return application.FloodAllow, nil
	}
	if !e.warned {
		e.warned = true
		return application.FloodWarn, nil
	}
	return application.FloodDrop, nil
}

// Cleanup forgets chats idle for longer than idle and returns how many.
func (f *FloodLimiter) Cleanup(now time.Time, idle time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, e := range f.entries {
		if now.Sub(e.lastSeen) > idle {
			delete(f.entries, id)
			n++
		}
	}
	return n
}
