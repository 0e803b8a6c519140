package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/keylock"
	"tg-bot-italian/internal/infra/metrics"
)

// SessionStore keeps sessions in a map guarded by a per-chat FIFO lock.
type SessionStore struct {
	locks *keylock.Locker
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[int64]*model.Session
}

var (
	_ repository.SessionStore  = (*SessionStore)(nil)
	_ repository.SessionReader = (*SessionStore)(nil)
)

func NewSessionStore() *SessionStore {
	return &SessionStore{
		locks:    keylock.New(),
		now:      time.Now,
		sessions: make(map[int64]*model.Session),
	}
}

func (s *SessionStore) WithSession(ctx context.Context, chatID int64, fn repository.SessionFunc) error {
	start := time.Now()
	unlock, err := s.locks.Lock(ctx, chatID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: chat %d: %v", domain.ErrSessionBusy, chatID, err)
		}
		return err
	}
	defer unlock()
	metrics.ObserveSessionWait("memory", time.Since(start))

	s.mu.RLock()
	cur, ok := s.sessions[chatID]
	s.mu.RUnlock()

	var work *model.Session
	if ok {
		work = cur.Clone()
	} else {
		work = model.NewSession(chatID, s.now())
	}

	if err := repository.CallSessionFunc(ctx, fn, work); err != nil {
		return err
	}

	work.ChatID = chatID
	work.UpdatedAt = s.now()
	s.mu.Lock()
	s.sessions[chatID] = work
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) Load(_ context.Context, chatID int64) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.sessions[chatID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cur.Clone(), nil
}
