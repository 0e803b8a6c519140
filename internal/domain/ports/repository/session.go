package repository

import (
	"context"
	"fmt"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
)

// SessionFunc mutates the working copy of a session. Returning an error (or
// panicking) discards every change made to it.
type SessionFunc func(ctx context.Context, s *model.Session) error

// SessionStore gives exclusive, transactional access to the session of one
// chat at a time.
//
// A missing session is created with the start stage and an empty context
// before fn runs; if fn fails the creation is rolled back with the rest.
// Waiting for a busy chat honours ctx and fails with domain.ErrSessionBusy.
type SessionStore interface {
	WithSession(ctx context.Context, chatID int64, fn SessionFunc) error
}

// SessionReader is an optional read-only view used by tooling and tests.
type SessionReader interface {
	Load(ctx context.Context, chatID int64) (*model.Session, error)
}

// CallSessionFunc runs fn and turns a panic into an error wrapping
// domain.ErrHandlerFailed, so stores can always roll back and unlock.
func CallSessionFunc(ctx context.Context, fn SessionFunc, s *model.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: session func panicked: %v", domain.ErrHandlerFailed, r)
		}
	}()
	return fn(ctx, s)
}
