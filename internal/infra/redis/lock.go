// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg-bot-italian/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker is a token-guarded SETNX lock. It gives cross-instance exclusion;
// callers order their own waiters in-process.
type Locker struct {
	cli  *redis.Client
	poll time.Duration
}

func NewLocker(c *Client) *Locker {
	return &Locker{cli: c.cli, poll: 25 * time.Millisecond}
}

// Lock retries until the key is taken or ctx ends (domain.ErrSessionBusy).
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	wait := l.poll
	for {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %s: %v", domain.ErrSessionBusy, key, ctx.Err())
			}
			return "", unavailable("lock", err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s: %v", domain.ErrSessionBusy, key, ctx.Err())
		}
		if wait < 200*time.Millisecond {
			wait *= 2
		}
	}
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return unavailable("unlock", err)
	}
	return nil
}
