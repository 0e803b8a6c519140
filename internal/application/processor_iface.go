package application

import (
	"context"
	"time"

	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/usecase"
)

// ---- small interfaces to decouple the processor from concrete components ----
// They describe the minimal surface the processor needs so tests can pass in
// light-weight mocks.

type UpdateDecoder interface {
	Decode(raw []byte, receivedAt time.Time) (model.Update, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, sess *model.Session, upd model.Update) usecase.Result
}

type OutboundQueue interface {
	Enqueue(ctx context.Context, actions ...model.OutboundAction) error
	Saturated() bool
}

type FloodDecision int

const (
	FloodAllow FloodDecision = iota
	FloodWarn                // first rejection in the window: tell the user once
	FloodDrop
)

// FloodLimiter caps inbound updates per chat.
type FloodLimiter interface {
	Allow(ctx context.Context, chatID int64) (FloodDecision, error)
}
