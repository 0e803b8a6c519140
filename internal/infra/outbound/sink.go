package outbound

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/infra/metrics"
)

// failure reasons
const (
	ReasonPermanent = "permanent"
	ReasonExhausted = "exhausted"
	ReasonShutdown  = "shutdown"
)

// Failure describes an action that will not be delivered.
type Failure struct {
	Action model.OutboundAction `json:"action"`
	Reason string               `json:"reason"`
	Error  string               `json:"error,omitempty"`
	At     time.Time            `json:"at"`
}

// FailureSink receives undeliverable actions. Report must not block for long.
type FailureSink interface {
	Report(ctx context.Context, f Failure)
}

// LogSink logs failures and counts them.
type LogSink struct {
	log *zerolog.Logger
}

func NewLogSink(log *zerolog.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Report(_ context.Context, f Failure) {
	metrics.IncOutboundFailed(f.Reason)
	s.log.Error().
		Str("action_id", f.Action.ID).
		Int64("chat_id", f.Action.ChatID).
		Int64("update_id", f.Action.UpdateID).
		Str("kind", string(f.Action.Kind)).
		Int("attempts", f.Action.AttemptCount).
		Str("reason", f.Reason).
		Str("error", f.Error).
		Msg("outbound action dropped")
}

// MultiSink fans a failure out to several sinks.
type MultiSink []FailureSink

func (m MultiSink) Report(ctx context.Context, f Failure) {
	for _, s := range m {
		if s != nil {
			s.Report(ctx, f)
		}
	}
}
