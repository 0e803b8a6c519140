package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"tg-bot-italian/internal/domain/ports/repository"
)

var _ repository.DedupStore = (*DedupStore)(nil)

// DedupStore uses one key per update id; expiry is native so Sweep is a no-op.
type DedupStore struct {
	cli       *redis.Client
	retention time.Duration
	lease     time.Duration
}

func NewDedupStore(c *Client, retention, lease time.Duration) *DedupStore {
	return &DedupStore{cli: c.cli, retention: retention, lease: lease}
}

func (d *DedupStore) Observe(ctx context.Context, updateID int64, _ time.Time) (bool, error) {
	ok, err := d.cli.SetNX(ctx, dedupKey(updateID), "inflight", d.lease).Result()
	if err != nil {
		return false, unavailable("dedup_observe", err)
	}
	return ok, nil
}

func (d *DedupStore) Confirm(ctx context.Context, updateID int64, _ time.Time) error {
	if err := d.cli.Set(ctx, dedupKey(updateID), "done", d.retention).Err(); err != nil {
		return unavailable("dedup_confirm", err)
	}
	return nil
}

func (d *DedupStore) Release(ctx context.Context, updateID int64) error {
	if err := d.cli.Del(ctx, dedupKey(updateID)).Err(); err != nil {
		return unavailable("dedup_release", err)
	}
	return nil
}

func (d *DedupStore) Sweep(context.Context, time.Time) (int, error) { return 0, nil }
