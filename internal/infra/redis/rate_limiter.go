package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"tg-bot-italian/internal/application"
	"tg-bot-italian/internal/infra/metrics"
)

var _ application.FloodLimiter = (*FloodLimiter)(nil)

// FloodLimiter is a fixed-window per-chat counter shared by all instances.
type FloodLimiter struct {
	cli    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewFloodLimiter(c *Client, perMinute int) *FloodLimiter {
	return &FloodLimiter{cli: c.cli, limit: perMinute, window: time.Minute, now: time.Now}
}

func (r *FloodLimiter) Allow(ctx context.Context, chatID int64) (application.FloodDecision, error) {
	key := floodKey(chatID, r.now().Truncate(r.window))
	count, err := incrWithTTL(ctx, r.cli, key, r.window)
	if err != nil {
		return application.FloodAllow, unavailable("flood", err)
	}
	switch {
	case count <= int64(r.limit):
		return application.FloodAllow, nil
	case count == int64(r.limit)+1:
		return application.FloodWarn, nil
	default:
		return application.FloodDrop, nil
	}
}

// GlobalLimiter spends a per-second send budget shared by all instances.
// Wait blocks until the current or a later second has room.
type GlobalLimiter struct {
	cli   *redis.Client
	limit int64
	now   func() time.Time
}

func NewGlobalLimiter(c *Client, perSecond int) *GlobalLimiter {
	if perSecond <= 0 {
		perSecond = 30
	}
	return &GlobalLimiter{cli: c.cli, limit: int64(perSecond), now: time.Now}
}

func (g *GlobalLimiter) Wait(ctx context.Context) error {
	for {
		now := g.now()
		count, err := incrWithTTL(ctx, g.cli, globalRateKey(now.Unix()), 2*time.Second)
		if err != nil {
			// fall through rather than stall delivery; per-chat buckets still apply
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.IncStoreError(backend, "global_rate")
			return nil
		}
		if count <= g.limit {
			return nil
		}
		next := now.Truncate(time.Second).Add(time.Second)
		select {
		case <-time.After(next.Sub(now)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func incrWithTTL(ctx context.Context, cli *redis.Client, key string, ttl time.Duration) (int64, error) {
	count, err := cli.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := cli.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}
