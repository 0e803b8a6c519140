package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tg-bot-italian/internal/application"
	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/adapters/evaluator"
	"tg-bot-italian/internal/infra/api"
	"tg-bot-italian/internal/infra/i18n"
	"tg-bot-italian/internal/infra/metrics"
	"tg-bot-italian/internal/infra/sched"
	"tg-bot-italian/internal/infra/telegram"
	"tg-bot-italian/internal/infra/web"
	"tg-bot-italian/internal/usecase"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive updates (webhook or long polling) and run the tutor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags)
		},
	}
}

func runServe(ctx context.Context, flags *rootFlags) error {
	cfg, log, err := flags.load()
	if err != nil {
		return err
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, cfg.Storage.Backend)

	st, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	client, bot, err := buildClient(cfg, log)
	if err != nil {
		return err
	}
	queue, closeSink, err := buildQueue(cfg, client, st, log)
	if err != nil {
		return err
	}
	defer closeSink()

	texts, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Tutor.Language)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}
	bank, err := usecase.LoadQuestionBank(cfg.Tutor.QuestionsPath, cfg.Tutor.AnswersPath)
	if err != nil {
		return err
	}
	eval, err := evaluator.New(ctx, cfg.Evaluator, log)
	if err != nil {
		return err
	}
	dispatcher := usecase.NewDispatcher(texts, log)
	dispatcher.RestartOnComplete(cfg.Tutor.RestartOnComplete)
	usecase.NewTutor(bank, eval, texts, cfg.Tutor.LessonSize, log).Register(dispatcher)

	proc := application.NewProcessor(application.ProcessorDeps{
		Decoder:    telegram.NewDecoder(),
		Dedup:      st.dedup,
		Sessions:   st.sessions,
		Dispatcher: dispatcher,
		Queue:      queue,
		Journal:    st.journal,
		Flood:      st.flood,
		Texts:      texts,
	}, cfg.Webhook.ProcessingTimeout, cfg.Runtime.Dev, log)

	greeter, err := sched.NewGreetingWorker(cfg.Greeting, queue, log)
	if err != nil {
		return err
	}
	st.cleaners["outbound_limiters"] = func(_ time.Time) int { return queue.CleanupLimiters() }
	maint := sched.NewMaintenanceWorker(cfg.Dedup.SweepInterval, st.dedup, st.cleaners, log)

	// workers stop with the receiver even when it fails before ctx ends
	ctx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg sync.WaitGroup
	runBackground := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("worker", name).Msg("background worker stopped")
			}
		}()
	}
	runBackground("greeting", greeter.Run)
	runBackground("maintenance", maint.Run)

	switch cfg.Bot.Mode {
	case "polling":
		if bot == nil {
			err = errors.New("polling needs a real bot client; unset bot.dry_run")
			break
		}
		if derr := bot.DeleteWebhook(ctx); derr != nil {
			log.Warn().Err(derr).Msg("could not remove webhook before polling")
		}
		process := func(ctx context.Context, raw []byte) error {
			_, err := proc.Process(ctx, raw)
			return err
		}
		err = telegram.NewPoller(bot.API(), process, cfg.Bot.Workers, log).Run(ctx)
	default:
		if cfg.Bot.RegisterWebhook && bot != nil {
			if err = bot.RegisterWebhook(ctx, cfg.Bot.WebhookURL, cfg.Webhook.Secret); err != nil {
				break
			}
			log.Info().Str("url", cfg.Bot.WebhookURL).Msg("webhook registered")
		}
		srv := api.NewServer(cfg.Webhook, proc, st.health, log)
		if cfg.Admin.Secret != "" {
			reader, _ := st.sessions.(repository.SessionReader)
			admin := web.NewServer(web.NewAuthManager(cfg.Admin.Secret, cfg.Admin.TokenTTL), reader, st.journal, log)
			srv.Mount("/admin", admin.Handler())
		}
		err = srv.ListenAndServe(ctx, cfg.Outbound.ShutdownTimeout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("receiver stopped")
	}

	log.Info().Msg("shutting down")
	cancelWorkers()
	wg.Wait()
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Outbound.ShutdownTimeout)
	defer cancel()
	if cerr := queue.Close(sctx); cerr != nil {
		log.Warn().Err(cerr).Int("pending", queue.Pending()).Msg("outbound queue not fully drained")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
