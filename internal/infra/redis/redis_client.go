package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tg-bot-italian/internal/config"
	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
)

const backend = "redis"

// Client owns the go-redis connection shared by the stores in this package.
type Client struct {
	cli *redis.Client
}

// NewClient accepts either a redis:// URL or a host:port address.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	var opts *redis.Options
	if strings.Contains(cfg.URL, "://") {
		o, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = o
	} else {
		opts = &redis.Options{Addr: cfg.URL, DB: cfg.DB}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", domain.ErrBackingStoreUnavailable, err)
	}
	return &Client{cli: c}, nil
}

func (c *Client) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

func (c *Client) Close() error { return c.cli.Close() }

// unavailable counts and wraps a redis failure.
func unavailable(op string, err error) error {
	metrics.IncStoreError(backend, op)
	return fmt.Errorf("%w: redis %s: %v", domain.ErrBackingStoreUnavailable, op, err)
}

func sessionKey(chatID int64) string { return fmt.Sprintf("tg:session:%d", chatID) }
func lockKey(chatID int64) string    { return fmt.Sprintf("tg:lock:session:%d", chatID) }
func dedupKey(updateID int64) string { return fmt.Sprintf("tg:update:%d", updateID) }
func floodKey(chatID int64, window time.Time) string {
	return fmt.Sprintf("tg:flood:%d:%d", chatID, window.Unix())
}
func globalRateKey(second int64) string { return fmt.Sprintf("tg:rate:global:%d", second) }
