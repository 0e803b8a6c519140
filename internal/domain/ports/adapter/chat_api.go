package adapter

import (
	"context"

	"tg-bot-italian/internal/domain/model"
)

// ChatAPIClient delivers one outbound action to the messaging platform.
// Failures must be *domain.SendError values so callers can tell transient
// from permanent failures apart.
type ChatAPIClient interface {
	Send(ctx context.Context, action model.OutboundAction) error
}
