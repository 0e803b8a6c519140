package telegram

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/infra/logging"
)

// ProcessFunc handles one raw update, as the webhook would.
type ProcessFunc func(ctx context.Context, raw []byte) error

type updateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller feeds long-polled updates into the same pipeline as the webhook.
// Updates are sharded by chat over the workers so one chat's updates are
// handled in the order they were received.
type Poller struct {
	src     updateSource
	process ProcessFunc
	workers int
	retries int
	backoff time.Duration
	log     *zerolog.Logger
}

func NewPoller(src updateSource, process ProcessFunc, workers int, log *zerolog.Logger) *Poller {
	if workers <= 0 {
		workers = 5
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Poller{
		src:     src,
		process: process,
		workers: workers,
		retries: 3,
		backoff: time.Second,
		log:     logging.Component(log, "poller"),
	}
}

// Run polls until ctx is canceled, then waits for in-flight updates.
func (p *Poller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = AllowedUpdates
	updates := p.src.GetUpdatesChan(u)

	shards := make([]chan tgbotapi.Update, p.workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, 64)
		wg.Add(1)
		go func(id int, in <-chan tgbotapi.Update) {
			defer wg.Done()
			for upd := range in {
				p.handle(ctx, id, upd)
			}
		}(i+1, shards[i])
	}

	p.log.Info().Int("workers", p.workers).Msg("long polling started")
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case upd, ok := <-updates:
			if !ok {
				break loop
			}
			shard := shards[shardOf(chatOf(upd), p.workers)]
			select {
			case shard <- upd:
			case <-ctx.Done():
				break loop
			}
		}
	}

	p.src.StopReceivingUpdates()
	for _, s := range shards {
		close(s)
	}
	wg.Wait()
	p.log.Info().Msg("long polling stopped")
	return nil
}

func (p *Poller) handle(ctx context.Context, worker int, upd tgbotapi.Update) {
	raw, err := json.Marshal(upd)
	if err != nil {
		p.log.Error().Err(err).Int("update_id", upd.UpdateID).Msg("re-encode update")
		return
	}
	delay := p.backoff
	for attempt := 1; ; attempt++ {
		err = p.process(context.WithoutCancel(ctx), raw)
		if err == nil {
			return
		}
		// polling has already advanced the offset, so retry here instead of upstream
		if !domain.IsRetryable(err) || attempt >= p.retries || ctx.Err() != nil {
			p.log.Error().Err(err).Int("worker", worker).Int("update_id", upd.UpdateID).Int("attempts", attempt).Msg("update dropped")
			return
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		delay *= 2
	}
}

func chatOf(u tgbotapi.Update) int64 {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message.Chat.ID
	case u.EditedMessage != nil && u.EditedMessage.Chat != nil:
		return u.EditedMessage.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil:
		return u.CallbackQuery.Message.Chat.ID
	}
	return 0
}

// shardOf maps a chat id (negative for groups) onto [0, n).
func shardOf(chatID int64, n int) int {
	return int(uint64(chatID) % uint64(n))
}
