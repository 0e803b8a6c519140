package outbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/adapter"
	"tg-bot-italian/internal/infra/logging"
	"tg-bot-italian/internal/infra/metrics"
)

type Config struct {
	PerChatRPS   float64
	PerChatBurst int
	Retry        RetryPolicy
	MaxPending   int
	SendTimeout  time.Duration
}

type chatQueue struct {
	items []model.OutboundAction
}

// Queue delivers outbound actions. Each chat has its own FIFO drained by a
// single goroutine, so actions for one chat arrive in enqueue order while
// chats proceed independently. A failing head action is retried in place
// and holds back the rest of its chat until it succeeds or is reported.
type Queue struct {
	cfg     Config
	client  adapter.ChatAPIClient
	global  Limiter
	chats   *chatLimiters
	sink    FailureSink
	sleeper Sleeper
	log     *zerolog.Logger
	now     func() time.Time

	runCtx context.Context
	abort  context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	queues  map[int64]*chatQueue
	pending int
	closed  bool
}

type Option func(*Queue)

// WithGlobalLimiter replaces the in-process global token bucket, e.g. with a
// limiter shared between instances.
func WithGlobalLimiter(l Limiter) Option { return func(q *Queue) { q.global = l } }

func WithSleeper(s Sleeper) Option { return func(q *Queue) { q.sleeper = s } }

func WithSink(s FailureSink) Option { return func(q *Queue) { q.sink = s } }

func NewQueue(client adapter.ChatAPIClient, cfg Config, log *zerolog.Logger, opts ...Option) *Queue {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 10_000
	}
	runCtx, abort := context.WithCancel(context.Background())
	q := &Queue{
		cfg:     cfg,
		client:  client,
		global:  NewGlobalLimiter(0, 0),
		chats:   newChatLimiters(cfg.PerChatRPS, cfg.PerChatBurst, 10*time.Minute),
		sleeper: realSleeper{},
		log:     logging.Component(log, "outbound"),
		now:     time.Now,
		runCtx:  runCtx,
		abort:   abort,
		queues:  make(map[int64]*chatQueue),
	}
	for _, o := range opts {
		o(q)
	}
	if q.sink == nil {
		q.sink = NewLogSink(q.log)
	}
	return q
}

// Enqueue admits all actions or none. It never waits for delivery.
func (q *Queue) Enqueue(_ context.Context, actions ...model.OutboundAction) error {
	if len(actions) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueClosed
	}
	if q.pending+len(actions) > q.cfg.MaxPending {
		return fmt.Errorf("%w: %d pending", domain.ErrQueueSaturated, q.pending)
	}
	for _, a := range actions {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = q.now()
		}
		cq, ok := q.queues[a.ChatID]
		if !ok {
			cq = &chatQueue{}
			q.queues[a.ChatID] = cq
			q.wg.Add(1)
			go q.drain(a.ChatID, cq)
		}
		cq.items = append(cq.items, a)
	}
	q.pending += len(actions)
	metrics.AddOutboundPending(len(actions))
	return nil
}

// Saturated reports whether the queue is at capacity, so intake can push
// back before doing any work.
func (q *Queue) Saturated() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed || q.pending >= q.cfg.MaxPending
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Close stops intake and waits for pending actions to be delivered. When ctx
// ends first, delivery is aborted and every action still queued is reported
// to the failure sink.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.abort()
		return nil
	case <-ctx.Done():
	}

	q.abort()
	<-done

	q.mu.Lock()
	var left []model.OutboundAction
	for id, cq := range q.queues {
		left = append(left, cq.items...)
		delete(q.queues, id)
	}
	q.pending -= len(left)
	q.mu.Unlock()
	metrics.AddOutboundPending(-len(left))

	for _, a := range left {
		q.sink.Report(context.Background(), Failure{Action: a, Reason: ReasonShutdown, Error: ctx.Err().Error(), At: q.now()})
	}
	if len(left) > 0 {
		return fmt.Errorf("outbound: %d actions undelivered at shutdown", len(left))
	}
	return nil
}

// CleanupLimiters drops per-chat buckets idle for longer than their TTL.
func (q *Queue) CleanupLimiters() int { return q.chats.cleanup(q.now()) }

func (q *Queue) drain(chatID int64, cq *chatQueue) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(cq.items) == 0 {
			delete(q.queues, chatID)
			q.mu.Unlock()
			return
		}
		head := cq.items[0]
		q.mu.Unlock()

		if !q.deliver(cq, head) {
			// aborted; Close reports what is left
			return
		}

		q.mu.Lock()
		cq.items = cq.items[1:]
		q.pending--
		q.mu.Unlock()
		metrics.AddOutboundPending(-1)
	}
}

// deliver returns false only when the queue is being torn down and a is
// still undelivered.
func (q *Queue) deliver(cq *chatQueue, a model.OutboundAction) bool {
	log := q.log.With().Str("action_id", a.ID).Int64("chat_id", a.ChatID).Logger()
	perChat := q.chats.get(a.ChatID)

	for {
		if err := perChat.Wait(q.runCtx); err != nil {
			return false
		}
		if err := q.global.Wait(q.runCtx); err != nil {
			return false
		}

		a.AttemptCount++
		err := q.send(a)
		if err == nil {
			metrics.IncOutboundSend(string(a.Kind), "ok")
			return true
		}
		if q.runCtx.Err() != nil {
			q.store(cq, a)
			return false
		}

		if errors.Is(err, domain.ErrOutboundPermanent) {
			metrics.IncOutboundSend(string(a.Kind), "permanent")
			q.sink.Report(q.runCtx, Failure{Action: a, Reason: ReasonPermanent, Error: err.Error(), At: q.now()})
			return true
		}

		metrics.IncOutboundSend(string(a.Kind), "transient")
		if a.AttemptCount >= q.cfg.Retry.MaxAttempts {
			q.sink.Report(q.runCtx, Failure{Action: a, Reason: ReasonExhausted, Error: err.Error(), At: q.now()})
			return true
		}

		var retryAfter time.Duration
		var se *domain.SendError
		if errors.As(err, &se) {
			retryAfter = se.RetryAfter
		}
		delay := q.cfg.Retry.Delay(a.AttemptCount, a.LastDelay, retryAfter)
		a.LastDelay = delay
		a.NotBefore = q.now().Add(delay)
		q.store(cq, a)
		metrics.ObserveRetryDelay(delay)
		log.Warn().Err(err).Int("attempt", a.AttemptCount).Dur("delay", delay).Msg("send failed, retrying")

		if err := q.sleeper.Sleep(q.runCtx, delay); err != nil {
			return false
		}
	}
}

func (q *Queue) send(a model.OutboundAction) error {
	ctx := q.runCtx
	if q.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.SendTimeout)
		defer cancel()
	}
	start := time.Now()
	err := q.client.Send(ctx, a)
	metrics.ObserveOutboundSend(time.Since(start))
	return err
}

// store writes the head action back so retry bookkeeping survives an abort.
func (q *Queue) store(cq *chatQueue, a model.OutboundAction) {
	q.mu.Lock()
	if len(cq.items) > 0 && cq.items[0].ID == a.ID {
		cq.items[0] = a
	}
	q.mu.Unlock()
}
