package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/metrics"
)

var _ repository.DedupStore = (*DedupRepo)(nil)

// DedupRepo records update ids in processed_updates. An expired row (a
// crashed in-flight claim or an entry past retention) can be claimed again
// without waiting for the sweeper.
type DedupRepo struct {
	pool      *pgxpool.Pool
	retention time.Duration
	lease     time.Duration
}

func NewDedupRepo(pool *pgxpool.Pool, retention, lease time.Duration) *DedupRepo {
	return &DedupRepo{pool: pool, retention: retention, lease: lease}
}

const qClaimUpdate = `
INSERT INTO processed_updates (update_id, state, expires_at)
VALUES ($1, 'inflight', $2)
ON CONFLICT (update_id) DO UPDATE
  SET state = 'inflight', expires_at = EXCLUDED.expires_at
  WHERE processed_updates.expires_at < $3
RETURNING update_id;`

func (d *DedupRepo) Observe(ctx context.Context, updateID int64, at time.Time) (bool, error) {
	var id int64
	err := d.pool.QueryRow(ctx, qClaimUpdate, updateID, at.Add(d.lease), at).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("dedup_observe", err)
	}
	return true, nil
}

func (d *DedupRepo) Confirm(ctx context.Context, updateID int64, at time.Time) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE processed_updates SET state = 'done', expires_at = $2 WHERE update_id = $1;`,
		updateID, at.Add(d.retention))
	return storeErr("dedup_confirm", err)
}

func (d *DedupRepo) Release(ctx context.Context, updateID int64) error {
	_, err := d.pool.Exec(ctx,
		`DELETE FROM processed_updates WHERE update_id = $1 AND state = 'inflight';`, updateID)
	return storeErr("dedup_release", err)
}

func (d *DedupRepo) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM processed_updates WHERE expires_at < $1;`, now)
	if err != nil {
		return 0, storeErr("dedup_sweep", err)
	}
	n := int(tag.RowsAffected())
	metrics.IncDedupSwept(backend, n)
	return n, nil
}
