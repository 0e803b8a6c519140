//go:build !integration

package outbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
)

type mockClient struct {
	mu       sync.Mutex
	SendFunc func(ctx context.Context, a model.OutboundAction) error
	sent     []model.OutboundAction
	attempts map[string]int
}

func (m *mockClient) Send(ctx context.Context, a model.OutboundAction) error {
	m.mu.Lock()
	if m.attempts == nil {
		m.attempts = make(map[string]int)
	}
	m.attempts[a.ID]++
	fn := m.SendFunc
	m.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(ctx, a)
	}
	if err == nil {
		m.mu.Lock()
		m.sent = append(m.sent, a)
		m.mu.Unlock()
	}
	return err
}

func (m *mockClient) sentFor(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.sent {
		if a.ChatID == chatID {
			out = append(out, a.Content.Text)
		}
	}
	return out
}

func (m *mockClient) attemptsFor(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[id]
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type recordingSink struct {
	mu       sync.Mutex
	failures []Failure
}

func (s *recordingSink) Report(_ context.Context, f Failure) {
	s.mu.Lock()
	s.failures = append(s.failures, f)
	s.mu.Unlock()
}

func (s *recordingSink) all() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Failure(nil), s.failures...)
}

func testConfig() Config {
	return Config{
		Retry:      RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 5},
		MaxPending: 100,
	}
}

func msg(chatID int64, text string) model.OutboundAction {
	return model.NewMessage(chatID, model.Content{Text: text}, time.Now())
}

func closeQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestQueuePreservesPerChatOrder(t *testing.T) {
	client := &mockClient{SendFunc: func(context.Context, model.OutboundAction) error {
		time.Sleep(time.Millisecond)
		return nil
	}}
	q := NewQueue(client, testConfig(), nil)

	for i := 0; i < 10; i++ {
		for _, chat := range []int64{1, 2, 3} {
			if err := q.Enqueue(context.Background(), msg(chat, fmt.Sprintf("m%d", i))); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
		}
	}
	closeQueue(t, q)

	for _, chat := range []int64{1, 2, 3} {
		got := client.sentFor(chat)
		if len(got) != 10 {
			t.Fatalf("chat %d: expected 10 deliveries, got %d", chat, len(got))
		}
		for i, text := range got {
			if text != fmt.Sprintf("m%d", i) {
				t.Fatalf("chat %d: out of order delivery %v", chat, got)
			}
		}
	}
}

func TestQueueRetriesTransientExactlyMaxAttempts(t *testing.T) {
	client := &mockClient{SendFunc: func(context.Context, model.OutboundAction) error {
		return domain.Transient(errors.New("502 bad gateway"), 0)
	}}
	sleeper := &recordingSleeper{}
	sink := &recordingSink{}
	cfg := testConfig()
	q := NewQueue(client, cfg, nil, WithSleeper(sleeper), WithSink(sink))

	a := msg(1, "hello")
	q.Enqueue(context.Background(), a)
	closeQueue(t, q)

	if n := client.attemptsFor(a.ID); n != cfg.Retry.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", cfg.Retry.MaxAttempts, n)
	}
	failures := sink.all()
	if len(failures) != 1 || failures[0].Reason != ReasonExhausted || failures[0].Action.AttemptCount != cfg.Retry.MaxAttempts {
		t.Fatalf("expected one exhausted report, got %+v", failures)
	}
	if len(sleeper.delays) != cfg.Retry.MaxAttempts-1 {
		t.Fatalf("expected %d backoff waits, got %v", cfg.Retry.MaxAttempts-1, sleeper.delays)
	}
	for i, d := range sleeper.delays {
		if d > cfg.Retry.MaxDelay {
			t.Errorf("delay %d (%s) exceeds cap", i, d)
		}
		if i > 0 && d < sleeper.delays[i-1] {
			t.Errorf("delays must not shrink: %v", sleeper.delays)
		}
	}
	if q.Pending() != 0 {
		t.Errorf("reported action must leave the queue, pending=%d", q.Pending())
	}
}

func TestQueuePermanentFailureIsReportedOnce(t *testing.T) {
	client := &mockClient{SendFunc: func(_ context.Context, a model.OutboundAction) error {
		if a.Content.Text == "blocked" {
			return domain.Permanent(errors.New("403 bot was blocked"))
		}
		return nil
	}}
	sink := &recordingSink{}
	q := NewQueue(client, testConfig(), nil, WithSink(sink), WithSleeper(&recordingSleeper{}))

	blocked := msg(1, "blocked")
	q.Enqueue(context.Background(), blocked, msg(1, "after"))
	closeQueue(t, q)

	if n := client.attemptsFor(blocked.ID); n != 1 {
		t.Fatalf("permanent failures must not be retried, got %d attempts", n)
	}
	f := sink.all()
	if len(f) != 1 || f[0].Reason != ReasonPermanent {
		t.Fatalf("expected one permanent report, got %+v", f)
	}
	if got := client.sentFor(1); len(got) != 1 || got[0] != "after" {
		t.Fatalf("later actions must still be delivered, got %v", got)
	}
}

func TestQueueHonoursRetryAfterAndHoldsHeadOfLine(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	client := &mockClient{SendFunc: func(_ context.Context, a model.OutboundAction) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if a.Content.Text == "first" && calls == 1 {
			return domain.Transient(errors.New("429 too many requests"), 3*time.Second)
		}
		return nil
	}}
	sleeper := &recordingSleeper{}
	q := NewQueue(client, testConfig(), nil, WithSleeper(sleeper))

	q.Enqueue(context.Background(), msg(1, "first"), msg(1, "second"))
	closeQueue(t, q)

	if len(sleeper.delays) != 1 || sleeper.delays[0] != 3*time.Second {
		t.Fatalf("expected retry_after to win over backoff, got %v", sleeper.delays)
	}
	if got := client.sentFor(1); len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("retried head must stay ahead of later actions, got %v", got)
	}
}

func TestQueueSaturation(t *testing.T) {
	block := make(chan struct{})
	client := &mockClient{SendFunc: func(ctx context.Context, _ model.OutboundAction) error {
		select {
		case <-block:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	cfg := testConfig()
	cfg.MaxPending = 2
	q := NewQueue(client, cfg, nil)

	if err := q.Enqueue(context.Background(), msg(1, "a"), msg(2, "b")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !q.Saturated() {
		t.Error("expected queue to report saturation")
	}
	if err := q.Enqueue(context.Background(), msg(3, "c")); !errors.Is(err, domain.ErrQueueSaturated) {
		t.Fatalf("expected ErrQueueSaturated, got %v", err)
	}
	close(block)
	closeQueue(t, q)
}

func TestQueueCloseReportsUndelivered(t *testing.T) {
	client := &mockClient{SendFunc: func(ctx context.Context, _ model.OutboundAction) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	sink := &recordingSink{}
	q := NewQueue(client, testConfig(), nil, WithSink(sink))
	q.Enqueue(context.Background(), msg(1, "a"), msg(1, "b"), msg(2, "c"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := q.Close(ctx); err == nil {
		t.Fatal("expected an error listing undelivered actions")
	}

	f := sink.all()
	if len(f) != 3 {
		t.Fatalf("expected all 3 actions reported, got %d", len(f))
	}
	for _, x := range f {
		if x.Reason != ReasonShutdown {
			t.Errorf("expected shutdown reason, got %q", x.Reason)
		}
	}
	if err := q.Enqueue(context.Background(), msg(1, "late")); !errors.Is(err, domain.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after Close, got %v", err)
	}
}

func TestQueuePerChatRateLimit(t *testing.T) {
	client := &mockClient{}
	cfg := testConfig()
	cfg.PerChatRPS = 50
	cfg.PerChatBurst = 1
	q := NewQueue(client, cfg, nil)

	start := time.Now()
	for i := 0; i < 5; i++ {
		q.Enqueue(context.Background(), msg(1, fmt.Sprint(i)))
	}
	closeQueue(t, q)

	// 1 immediate + 4 spaced by 20ms
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("per-chat limit not applied, took %s", elapsed)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, MaxAttempts: 10}
	cases := []struct {
		n          int
		prev       time.Duration
		retryAfter time.Duration
		want       time.Duration
	}{
		{1, 0, 0, 500 * time.Millisecond},
		{2, 0, 0, time.Second},
		{3, 0, 0, 2 * time.Second},
		{8, 0, 0, 30 * time.Second},
		{60, 0, 0, 30 * time.Second},
		{1, 4 * time.Second, 0, 4 * time.Second},
		// an earlier oversized wait does not lift the cap for later attempts
		{3, time.Minute, 0, 30 * time.Second},
	}
	for _, tc := range cases {
		got := p.Delay(tc.n, tc.prev, tc.retryAfter)
		if got != tc.want {
			t.Errorf("Delay(%d, %s, %s) = %s, want %s", tc.n, tc.prev, tc.retryAfter, got, tc.want)
		}
		if got > p.MaxDelay {
			t.Errorf("Delay(%d, %s, 0) = %s exceeds cap %s", tc.n, tc.prev, got, p.MaxDelay)
		}
	}
}

func TestRetryPolicyDelayHonoursRetryAfter(t *testing.T) {
	p := RetryPolicy{BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, MaxAttempts: 10}
	cases := []struct {
		name       string
		n          int
		retryAfter time.Duration
		want       time.Duration
	}{
		{"above backoff", 2, 5 * time.Second, 5 * time.Second},
		{"below backoff", 4, time.Second, 4 * time.Second},
		{"above cap", 2, time.Minute, time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.Delay(tc.n, 0, tc.retryAfter); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
	// the next attempt without a platform hint is back under the cap
	if got := p.Delay(3, time.Minute, 0); got != p.MaxDelay {
		t.Fatalf("expected %s after an oversized retry_after, got %s", p.MaxDelay, got)
	}
}

func TestChatLimitersCleanup(t *testing.T) {
	c := newChatLimiters(1, 1, time.Minute)
	c.get(1)
	c.get(2)
	if n := c.cleanup(time.Now().Add(2 * time.Minute)); n != 2 {
		t.Fatalf("expected 2 idle limiters removed, got %d", n)
	}
	if c.len() != 0 {
		t.Fatalf("expected no limiters left, got %d", c.len())
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := MultiSink{a, nil, b}
	sink.Report(context.Background(), Failure{Reason: ReasonExhausted, At: time.Now()})
	if len(a.all()) != 1 || len(b.all()) != 1 {
		t.Fatalf("expected each sink to see the failure, got %d and %d", len(a.all()), len(b.all()))
	}
	if a.all()[0].Reason != ReasonExhausted {
		t.Fatalf("unexpected reason %q", a.all()[0].Reason)
	}
}
