package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/logging"
	"tg-bot-italian/internal/infra/metrics"
)

// Cleaner drops idle in-memory state and returns how many entries it removed.
type Cleaner func(now time.Time) int

// MaintenanceWorker sweeps expired dedupe entries and idle rate limiter
// buckets on a fixed interval.
type MaintenanceWorker struct {
	interval time.Duration
	dedup    repository.DedupStore
	cleaners map[string]Cleaner
	now      func() time.Time
	log      *zerolog.Logger
}

func NewMaintenanceWorker(interval time.Duration, dedup repository.DedupStore, cleaners map[string]Cleaner, logger *zerolog.Logger) *MaintenanceWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &MaintenanceWorker{
		interval: interval,
		dedup:    dedup,
		cleaners: cleaners,
		now:      time.Now,
		log:      logging.Component(logger, "MaintenanceWorker"),
	}
}

func (w *MaintenanceWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting maintenance worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping maintenance worker")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *MaintenanceWorker) RunOnce(ctx context.Context) {
	now := w.now()
	if w.dedup != nil {
		n, err := w.dedup.Sweep(ctx, now)
		if err != nil {
			metrics.IncScheduledJob("dedup_sweep", "error")
			w.log.Error().Err(err).Msg("dedup sweep failed")
		} else {
			metrics.IncScheduledJob("dedup_sweep", "ok")
			if n > 0 {
				w.log.Debug().Int("count", n).Msg("expired update ids swept")
			}
		}
	}
	for name, clean := range w.cleaners {
		if n := clean(now); n > 0 {
			w.log.Debug().Str("cleaner", name).Int("count", n).Msg("idle entries removed")
		}
		metrics.IncScheduledJob(name, "ok")
	}
}
