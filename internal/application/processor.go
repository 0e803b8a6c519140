package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/repository"
	"tg-bot-italian/internal/infra/logging"
	"tg-bot-italian/internal/infra/metrics"
	"tg-bot-italian/internal/usecase"
)

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored" // undecodable or unsupported update
	OutcomeLimited   Outcome = "limited" // dropped by flood control
	OutcomeRetry     Outcome = "retry"
)

const releaseTimeout = 2 * time.Second

// Translator resolves user-facing texts.
type Translator interface {
	T(key string, args ...any) string
}

// Processor runs one raw update through decode, dedup, the chat's session
// and the dispatcher, and hands the resulting actions to the outbound queue.
type Processor struct {
	decoder    UpdateDecoder
	dedup      repository.DedupStore
	sessions   repository.SessionStore
	dispatcher Dispatcher
	queue      OutboundQueue
	journal    repository.ExerciseJournal
	flood      FloodLimiter
	texts      Translator

	timeout time.Duration
	dev     bool
	log     *zerolog.Logger
	now     func() time.Time
}

type ProcessorDeps struct {
	Decoder    UpdateDecoder
	Dedup      repository.DedupStore
	Sessions   repository.SessionStore
	Dispatcher Dispatcher
	Queue      OutboundQueue
	Journal    repository.ExerciseJournal // optional
	Flood      FloodLimiter               // optional
	Texts      Translator
}

func NewProcessor(deps ProcessorDeps, timeout time.Duration, dev bool, log *zerolog.Logger) *Processor {
	if log == nil {
		log = logging.Nop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Processor{
		decoder:    deps.Decoder,
		dedup:      deps.Dedup,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		queue:      deps.Queue,
		journal:    deps.Journal,
		flood:      deps.Flood,
		texts:      deps.Texts,
		timeout:    timeout,
		dev:        dev,
		log:        logging.Component(log, "processor"),
		now:        time.Now,
	}
}

// Process handles one raw payload. A non-nil error means the update was not
// processed and the transport should ask for redelivery; everything else
// (including bad payloads and duplicates) is acknowledged.
//
// Processing is detached from ctx's cancellation but bounded by the
// processing timeout, so a disconnecting client cannot interrupt a commit.
func (p *Processor) Process(ctx context.Context, raw []byte) (Outcome, error) {
	start := time.Now()
	receivedAt := p.now()

	upd, err := p.decoder.Decode(raw, receivedAt)
	if err != nil {
		var de *domain.DecodeError
		reason := "malformed"
		if errors.As(err, &de) && errors.Is(de.Reason, domain.ErrUnsupportedKind) {
			reason = "unsupported"
		}
		metrics.IncDecoded(reason)
		logging.With(ctx, p.log).Debug().Err(err).Msg("update ignored")
		return p.done(OutcomeIgnored, start), nil
	}
	metrics.IncDecoded(string(upd.Kind))

	if p.queue.Saturated() {
		return p.done(OutcomeRetry, start), domain.ErrQueueSaturated
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	ctx = logging.WithUpdateID(logging.WithChatID(ctx, upd.ChatID), upd.ID)
	log := logging.With(ctx, p.log)

	first, err := p.dedup.Observe(ctx, upd.ID, receivedAt)
	if err != nil {
		log.Error().Err(err).Msg("dedup observe failed")
		return p.done(OutcomeRetry, start), storeErr(err)
	}
	if !first {
		metrics.IncDuplicate()
		log.Debug().Msg("duplicate update dropped")
		return p.done(OutcomeDuplicate, start), nil
	}

	if p.flood != nil {
		if limited := p.checkFlood(ctx, upd); limited {
			p.confirm(ctx, upd.ID)
			return p.done(OutcomeLimited, start), nil
		}
	}

	var res usecase.Result
	err = p.sessions.WithSession(ctx, upd.ChatID, func(ctx context.Context, s *model.Session) error {
		res = p.dispatcher.Dispatch(ctx, s, upd)
		// queued before commit: a rejected batch rolls the session back too,
		// and a commit failing after this point repeats the reply on redelivery
		return p.queue.Enqueue(ctx, res.Actions...)
	})
	if err != nil {
		p.release(ctx, upd.ID)
		log.Warn().Err(err).Msg("update not processed, asking for redelivery")
		return p.done(OutcomeRetry, start), storeErr(err)
	}

	if p.journal != nil && len(res.Events) > 0 {
		if err := p.journal.Append(ctx, res.Events...); err != nil {
			log.Warn().Err(err).Int("events", len(res.Events)).Msg("exercise journal append failed")
		}
	}
	p.confirm(ctx, upd.ID)

	log.Info().
		Str("kind", string(upd.Kind)).
		Str("payload", logging.Redact(upd.Payload, p.dev)).
		Str("from", string(res.From)).
		Str("to", string(res.To)).
		Str("outcome", res.Outcome).
		Int("actions", len(res.Actions)).
		Dur("took", time.Since(start)).
		Msg("update processed")
	return p.done(OutcomeProcessed, start), nil
}

func (p *Processor) checkFlood(ctx context.Context, upd model.Update) bool {
	decision, err := p.flood.Allow(ctx, upd.ChatID)
	if err != nil {
		// fail open
		logging.With(ctx, p.log).Warn().Err(err).Msg("flood limiter unavailable")
		return false
	}
	switch decision {
	case FloodAllow:
		return false
	case FloodWarn:
		warn := model.NewMessage(upd.ChatID, model.Content{Text: p.texts.T("dispatch.slow_down")}, p.now())
		warn.UpdateID = upd.ID
		actions := []model.OutboundAction{warn}
		if upd.Kind == model.KindCallback {
			actions = append([]model.OutboundAction{model.NewCallbackAnswer(upd.ChatID, upd.CallbackID, "", p.now())}, actions...)
		}
		if err := p.queue.Enqueue(ctx, actions...); err != nil {
			logging.With(ctx, p.log).Warn().Err(err).Msg("slow down notice not queued")
		}
	}
	metrics.IncFloodLimited()
	return true
}

func (p *Processor) confirm(ctx context.Context, id int64) {
	if err := p.dedup.Confirm(ctx, id, p.now()); err != nil {
		logging.With(ctx, p.log).Warn().Err(err).Msg("dedup confirm failed")
	}
}

func (p *Processor) release(ctx context.Context, id int64) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := p.dedup.Release(rctx, id); err != nil {
		logging.With(ctx, p.log).Warn().Err(err).Msg("dedup release failed")
	}
}

func (p *Processor) done(o Outcome, start time.Time) Outcome {
	metrics.ObserveProcessing(string(o), float64(time.Since(start))/float64(time.Millisecond))
	return o
}

// storeErr makes sure a failure is recognisable as retryable.
func storeErr(err error) error {
	if domain.IsRetryable(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrSessionBusy, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrBackingStoreUnavailable, err)
}
