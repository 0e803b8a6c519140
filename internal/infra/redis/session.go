package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

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

// SessionStore keeps sessions as JSON strings. A per-chat FIFO lock orders
// local waiters; a redis lock excludes other instances, and the commit only
// lands while that lock is still ours.
type SessionStore struct {
	cli     *redis.Client
	locks   *keylock.Locker
	remote  *Locker
	lockTTL time.Duration
	now     func() time.Time
}

func NewSessionStore(c *Client, lockTTL time.Duration) *SessionStore {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &SessionStore{
		cli:     c.cli,
		locks:   keylock.New(),
		remote:  NewLocker(c),
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// commit writes the session only if the lock token still matches.
var luaCommit = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[2], ARGV[2])
	return 1
else
	return 0
end`)

func (s *SessionStore) WithSession(ctx context.Context, chatID int64, fn repository.SessionFunc) error {
	start := time.Now()
	unlock, err := s.locks.Lock(ctx, chatID)
	if err != nil {
		return fmt.Errorf("%w: chat %d: %v", domain.ErrSessionBusy, chatID, err)
	}
	defer unlock()

	lk := lockKey(chatID)
	token, err := s.remote.Lock(ctx, lk, s.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		// release even when ctx is already done
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = s.remote.Unlock(uctx, lk, token)
	}()
	metrics.ObserveSessionWait(backend, time.Since(start))

	work, err := s.load(ctx, chatID)
	if errors.Is(err, domain.ErrNotFound) {
		work = model.NewSession(chatID, s.now())
	} else if err != nil {
		return err
	}

	if err := repository.CallSessionFunc(ctx, fn, work); err != nil {
		return err
	}

	work.ChatID = chatID
	work.UpdatedAt = s.now()
	data, err := json.Marshal(work)
	if err != nil {
		return fmt.Errorf("redis: encode session: %w", err)
	}
	ok, err := luaCommit.Run(ctx, s.cli, []string{lk, sessionKey(chatID)}, token, data).Int()
	if err != nil {
		return unavailable("commit", err)
	}
	if ok != 1 {
		return fmt.Errorf("%w: chat %d: lock expired before commit", domain.ErrSessionConflict, chatID)
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context, chatID int64) (*model.Session, error) {
	return s.load(ctx, chatID)
}

func (s *SessionStore) load(ctx context.Context, chatID int64) (*model.Session, error) {
	data, err := s.cli.Get(ctx, sessionKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("load", err)
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("redis: decode session %d: %w", chatID, err)
	}
	if sess.Context == nil {
		sess.Context = map[string]string{}
	}
	return &sess, nil
}
