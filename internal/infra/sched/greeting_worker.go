package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"tg-bot-italian/internal/config"
	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/infra/logging"
	"tg-bot-italian/internal/infra/metrics"
)

// Enqueuer is the part of the outbound queue the workers need.
type Enqueuer interface {
	Enqueue(ctx context.Context, actions ...model.OutboundAction) error
}

// GreetingWorker enqueues the morning greeting for every configured chat at
// each tick of a cron expression.
type GreetingWorker struct {
	cron    string
	text    string
	chatIDs []int64
	queue   Enqueuer
	now     func() time.Time
	log     *zerolog.Logger
}

func NewGreetingWorker(cfg config.GreetingConfig, queue Enqueuer, logger *zerolog.Logger) (*GreetingWorker, error) {
	if cfg.Cron != "" && !gronx.IsValid(cfg.Cron) {
		return nil, fmt.Errorf("greeting: invalid cron expression %q", cfg.Cron)
	}
	if len(cfg.ChatIDs) > 0 && cfg.Text == "" {
		return nil, errors.New("greeting: text is empty")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &GreetingWorker{
		cron:    cfg.Cron,
		text:    cfg.Text,
		chatIDs: cfg.ChatIDs,
		queue:   queue,
		now:     time.Now,
		log:     logging.Component(logger, "GreetingWorker"),
	}, nil
}

// Run blocks until ctx ends. Without a cron expression it returns at once.
func (w *GreetingWorker) Run(ctx context.Context) error {
	if w.cron == "" || len(w.chatIDs) == 0 {
		w.log.Info().Msg("greeting disabled")
		return nil
	}
	w.log.Info().Str("cron", w.cron).Int("chats", len(w.chatIDs)).Msg("Starting greeting worker")
	for {
		next, err := gronx.NextTickAfter(w.cron, w.now(), false)
		if err != nil {
			return fmt.Errorf("greeting: next tick: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info().Msg("Stopping greeting worker")
			return ctx.Err()
		case <-timer.C:
		}
		if _, err := w.SendOnce(ctx); err != nil {
			w.log.Error().Err(err).Msg("greeting round failed")
		}
	}
}

// SendOnce enqueues the greeting for every chat and reports how many were
// accepted. One rejected chat does not stop the others.
func (w *GreetingWorker) SendOnce(ctx context.Context) (int, error) {
	now := w.now()
	sent := 0
	var errs []error
	for _, id := range w.chatIDs {
		a := model.NewMessage(id, model.Content{Text: w.text}, now)
		if err := w.queue.Enqueue(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
			continue
		}
		sent++
	}
	status := "ok"
	if len(errs) > 0 {
		status = "error"
	}
	metrics.IncScheduledJob("greeting", status)
	w.log.Info().Int("sent", sent).Int("failed", len(errs)).Msg("greeting enqueued")
	return sent, errors.Join(errs...)
}
