package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-bot-italian/internal/application"
	"tg-bot-italian/internal/config"
	"tg-bot-italian/internal/domain/ports/adapter"
	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/db/pebblestore"
	pg "tg-bot-italian/internal/infra/db/postgres"
	"tg-bot-italian/internal/infra/memory"
	"tg-bot-italian/internal/infra/outbound"
	red "tg-bot-italian/internal/infra/redis"
	"tg-bot-italian/internal/infra/sched"
	"tg-bot-italian/internal/infra/telegram"
)

// stores is the storage side of the bot for the configured backend.
type stores struct {
	dedup    repository.DedupStore
	sessions repository.SessionStore
	journal  repository.ExerciseJournal
	flood    application.FloodLimiter
	global   outbound.Limiter // nil keeps the in-process bucket
	health   func(ctx context.Context) error
	cleaners map[string]sched.Cleaner
	closers  []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildStores(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*stores, error) {
	s := &stores{cleaners: map[string]sched.Cleaner{}}

	var rc *red.Client
	if cfg.Redis.URL != "" {
		var err error
		if rc, err = red.NewClient(ctx, &cfg.Redis); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.closers = append(s.closers, func() { _ = rc.Close() })
	}

	switch cfg.Storage.Backend {
	case "memory":
		s.dedup = memory.NewDedupStore(cfg.Dedup.Retention, cfg.Dedup.Lease, cfg.Dedup.MaxEntries)
		s.sessions = memory.NewSessionStore()
		s.journal = memory.NewExerciseJournal(100)
	case "pebble":
		db, err := pebblestore.Open(cfg.Storage.PebblePath)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = db.Close() })
		s.dedup = pebblestore.NewDedupStore(db, cfg.Dedup.Retention, cfg.Dedup.Lease)
		s.sessions = pebblestore.NewSessionStore(db)
		s.journal = memory.NewExerciseJournal(100)
	case "postgres":
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		s.dedup = pg.NewDedupRepo(pool, cfg.Dedup.Retention, cfg.Dedup.Lease)
		s.sessions = pg.NewSessionRepo(pool)
		s.journal = pg.NewExerciseLogRepo(pool)
		s.health = pool.Ping
	case "redis":
		if rc == nil {
			return nil, errors.New("redis backend without redis.url")
		}
		s.dedup = red.NewDedupStore(rc, cfg.Dedup.Retention, cfg.Dedup.Lease)
		s.sessions = red.NewSessionStore(rc, cfg.Redis.LockTTL)
		s.journal = memory.NewExerciseJournal(100)
	default:
		s.Close()
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if rc != nil && s.health == nil {
		s.health = rc.Ping
	}

	if n := cfg.Inbound.PerChatPerMinute; n > 0 {
		if rc != nil {
			s.flood = red.NewFloodLimiter(rc, n)
		} else {
			fl := memory.NewFloodLimiter(n)
			s.flood = fl
			s.cleaners["flood_limiters"] = func(now time.Time) int { return fl.Cleanup(now, 10*time.Minute) }
		}
	}
	if cfg.Outbound.SharedLimiter {
		if rc == nil {
			s.Close()
			return nil, errors.New("outbound.shared_limiter needs redis.url")
		}
		s.global = red.NewGlobalLimiter(rc, int(cfg.Outbound.GlobalRPS))
	}

	log.Info().Str("backend", cfg.Storage.Backend).Bool("redis", rc != nil).Bool("flood_control", s.flood != nil).Msg("storage ready")
	return s, nil
}

// buildClient returns the sender and, unless this is a dry run, the Bot API
// client behind it (needed for polling and webhook registration).
func buildClient(cfg *config.Config, log *zerolog.Logger) (adapter.ChatAPIClient, *telegram.Client, error) {
	if cfg.Bot.DryRun {
		log.Warn().Msg("dry run: outbound actions are logged, not sent")
		return telegram.NewNoopClient(log), nil, nil
	}
	c, err := telegram.NewClient(cfg.Bot, cfg.Outbound.SendTimeout, log)
	if err != nil {
		return nil, nil, err
	}
	return c, c, nil
}

func buildQueue(cfg *config.Config, client adapter.ChatAPIClient, st *stores, log *zerolog.Logger) (*outbound.Queue, func(), error) {
	o := cfg.Outbound
	opts := []outbound.Option{}
	if st.global != nil {
		opts = append(opts, outbound.WithGlobalLimiter(st.global))
	} else {
		opts = append(opts, outbound.WithGlobalLimiter(outbound.NewGlobalLimiter(o.GlobalRPS, o.GlobalBurst)))
	}

	cleanup := func() {}
	if cfg.Failures.AMQPURL != "" {
		amqpSink, err := outbound.NewAMQPSink(cfg.Failures.AMQPURL, cfg.Failures.Exchange, cfg.Failures.RoutingKey, log)
		if err != nil {
			return nil, nil, fmt.Errorf("amqp: %w", err)
		}
		cleanup = func() { _ = amqpSink.Close() }
		opts = append(opts, outbound.WithSink(outbound.MultiSink{outbound.NewLogSink(log), amqpSink}))
	}

	q := outbound.NewQueue(client, outbound.Config{
		PerChatRPS:   o.PerChatRPS,
		PerChatBurst: o.PerChatBurst,
		Retry:        outbound.RetryPolicy{BaseDelay: o.BaseDelay, MaxDelay: o.MaxDelay, MaxAttempts: o.MaxAttempts},
		MaxPending:   o.MaxPending,
		SendTimeout:  o.SendTimeout,
	}, log, opts...)
	return q, cleanup, nil
}
