package telegram

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/adapter"
	"tg-bot-italian/internal/infra/logging"
)

var _ adapter.ChatAPIClient = (*NoopClient)(nil)

// NoopClient logs outbound actions instead of sending them. Used for dry runs
// and local development without a bot token.
type NoopClient struct {
	log   *zerolog.Logger
	delay time.Duration
}

func NewNoopClient(log *zerolog.Logger) *NoopClient {
	if log == nil {
		log = logging.Nop()
	}
	return &NoopClient{log: logging.Component(log, "telegram-noop"), delay: 50 * time.Millisecond}
}

func (c *NoopClient) Send(ctx context.Context, a model.OutboundAction) error {
	// simulate network latency, respecting ctx
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	c.log.Info().
		Str("action_id", a.ID).
		Int64("chat_id", a.ChatID).
		Str("kind", string(a.Kind)).
		Str("text", a.Content.Text).
		Int("button_rows", len(a.Content.Buttons)).
		Bool("force_reply", a.Content.ForceReply).
		Msg("outbound action")
	return nil
}
