package pebblestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/keylock"
	"tg-bot-italian/internal/infra/metrics"
)

var (
	_ repository.SessionStore  = (*SessionStore)(nil)
	_ repository.SessionReader = (*SessionStore)(nil)
)

// SessionStore serialises chats in-process and persists each committed
// session with a synced write.
type SessionStore struct {
	db    *DB
	locks *keylock.Locker
	now   func() time.Time
}

func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db, locks: keylock.New(), now: time.Now}
}

func (s *SessionStore) WithSession(ctx context.Context, chatID int64, fn repository.SessionFunc) error {
	start := time.Now()
	unlock, err := s.locks.Lock(ctx, chatID)
	if err != nil {
		return fmt.Errorf("%w: chat %d: %v", domain.ErrSessionBusy, chatID, err)
	}
	defer unlock()
	metrics.ObserveSessionWait(backend, time.Since(start))

	work, err := s.read(chatID)
	if err == domain.ErrNotFound {
		work = model.NewSession(chatID, s.now())
	} else if err != nil {
		return err
	}

	if err := repository.CallSessionFunc(ctx, fn, work); err != nil {
		return err
	}

	work.UpdatedAt = s.now()
	data, err := json.Marshal(work)
	if err != nil {
		return fmt.Errorf("pebble: encode session: %w", err)
	}
	if err := s.db.db.Set(sessionKey(chatID), data, pebble.Sync); err != nil {
		return unavailable("session_set", err)
	}
	return nil
}

func (s *SessionStore) Load(_ context.Context, chatID int64) (*model.Session, error) {
	return s.read(chatID)
}

func (s *SessionStore) read(chatID int64) (*model.Session, error) {
	raw, ok, err := s.db.get(sessionKey(chatID))
	if err != nil {
		return nil, unavailable("session_get", err)
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("pebble: decode session %d: %w", chatID, err)
	}
	if sess.Context == nil {
		sess.Context = map[string]string{}
	}
	return &sess, nil
}
