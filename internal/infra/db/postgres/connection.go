package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/infra/metrics"
)

const backend = "postgres"

// NewPgxPool connects and pings within a bounded time.
func NewPgxPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("postgres: database url is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres connect: %v", domain.ErrBackingStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres ping: %v", domain.ErrBackingStoreUnavailable, err)
	}
	return pool, nil
}

// storeErr maps driver failures onto the domain taxonomy. Lock waits cut
// short by ctx are "busy", everything else is "unavailable".
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: postgres %s: %v", domain.ErrSessionBusy, op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "55P03" || pgErr.Code == "57014") {
		// lock_not_available, query_canceled
		return fmt.Errorf("%w: postgres %s: %v", domain.ErrSessionBusy, op, err)
	}
	metrics.IncStoreError(backend, op)
	return fmt.Errorf("%w: postgres %s: %v", domain.ErrBackingStoreUnavailable, op, err)
}
