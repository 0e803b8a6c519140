package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/keylock"
	"tg-bot-italian/internal/infra/metrics"
)

var (
	_ repository.SessionStore  = (*SessionRepo)(nil)
	_ repository.SessionReader = (*SessionRepo)(nil)
)

// SessionRepo runs each WithSession in one transaction holding the chat's
// row lock (SELECT ... FOR UPDATE). The default row is inserted inside the
// same transaction so a failed fn leaves no trace.
type SessionRepo struct {
	pool  *pgxpool.Pool
	txm   repository.TransactionManager
	locks *keylock.Locker
	now   func() time.Time
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool, txm: NewTxManager(pool), locks: keylock.New(), now: time.Now}
}

const (
	qEnsureSession = `
INSERT INTO chat_sessions (chat_id, stage, context, generation, updated_at)
VALUES ($1, $2, '{}'::jsonb, 0, $3)
ON CONFLICT (chat_id) DO NOTHING;`

	qLockSession = `
SELECT chat_id, stage, context, generation, updated_at
FROM chat_sessions WHERE chat_id = $1 FOR UPDATE;`

	qSelectSession = `
SELECT chat_id, stage, context, generation, updated_at
FROM chat_sessions WHERE chat_id = $1;`

	qUpdateSession = `
UPDATE chat_sessions SET stage = $2, context = $3, generation = $4, updated_at = $5
WHERE chat_id = $1;`
)

func (r *SessionRepo) WithSession(ctx context.Context, chatID int64, fn repository.SessionFunc) error {
	start := time.Now()
	unlock, err := r.locks.Lock(ctx, chatID)
	if err != nil {
		return fmt.Errorf("%w: chat %d: %v", domain.ErrSessionBusy, chatID, err)
	}
	defer unlock()

	return r.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		if _, err := ex.Exec(ctx, qEnsureSession, chatID, string(model.StageStart), r.now()); err != nil {
			return storeErr("session_ensure", err)
		}
		work, err := scanSession(ex.QueryRow(ctx, qLockSession, chatID))
		if err != nil {
			return storeErr("session_lock", err)
		}
		metrics.ObserveSessionWait(backend, time.Since(start))

		if err := repository.CallSessionFunc(ctx, fn, work); err != nil {
			return err
		}

		data, err := json.Marshal(work.Context)
		if err != nil {
			return fmt.Errorf("postgres: encode session context: %w", err)
		}
		if _, err := ex.Exec(ctx, qUpdateSession, chatID, string(work.Stage), data, work.Generation, r.now()); err != nil {
			return storeErr("session_update", err)
		}
		return nil
	})
}

func (r *SessionRepo) Load(ctx context.Context, chatID int64) (*model.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, qSelectSession, chatID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeErr("session_load", err)
	}
	return s, nil
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		s     model.Session
		stage string
		raw   []byte
	)
	if err := row.Scan(&s.ChatID, &stage, &raw, &s.Generation, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Stage = model.Stage(stage)
	s.Context = map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.Context); err != nil {
			return nil, fmt.Errorf("decode session context: %w", err)
		}
	}
	return &s, nil
}
