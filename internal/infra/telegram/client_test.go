//go:build !integration

package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
)

type mockRequester struct {
	mu              sync.Mutex
	RequestFunc     func(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequestFunc func(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	requests        []tgbotapi.Chattable
}

func (m *mockRequester) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, c)
	m.mu.Unlock()
	if m.RequestFunc != nil {
		return m.RequestFunc(c)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockRequester) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	if m.MakeRequestFunc != nil {
		return m.MakeRequestFunc(endpoint, params)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func apiError(code, retryAfter int) error {
	return &tgbotapi.Error{Code: code, Message: "boom", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: retryAfter}}
}

func TestSendBuildsMessage(t *testing.T) {
	m := &mockRequester{}
	c := newClient(m, nil)

	a := model.NewMessage(7, model.Content{
		Text:             "Translate",
		ReplyToMessageID: 3,
		Buttons:          [][]model.Button{{{Text: "Next", Data: "1:next"}, {Text: "Docs", URL: "https://example.org"}}},
	}, time.Now())
	if err := c.Send(context.Background(), a); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, ok := m.requests[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected MessageConfig, got %T", m.requests[0])
	}
	if msg.ChatID != 7 || msg.Text != "Translate" || msg.ReplyToMessageID != 3 {
		t.Fatalf("unexpected message %+v", msg)
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard %#v", msg.ReplyMarkup)
	}
	if d := kb.InlineKeyboard[0][0].CallbackData; d == nil || *d != "1:next" {
		t.Fatalf("unexpected callback data %v", d)
	}
}

func TestSendForceReplyAndCallbackAnswer(t *testing.T) {
	m := &mockRequester{}
	c := newClient(m, nil)
	ctx := context.Background()

	c.Send(ctx, model.NewMessage(1, model.Content{Text: "q", ForceReply: true}, time.Now()))
	c.Send(ctx, model.NewCallbackAnswer(1, "cb-9", "", time.Now()))

	if _, ok := m.requests[0].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.ForceReply); !ok {
		t.Fatalf("expected force reply markup")
	}
	cb, ok := m.requests[1].(tgbotapi.CallbackConfig)
	if !ok || cb.CallbackQueryID != "cb-9" {
		t.Fatalf("unexpected callback request %#v", m.requests[1])
	}
}

func TestSendClassifiesFailures(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		want       error
		retryAfter time.Duration
	}{
		{"rate limited", apiError(429, 7), domain.ErrOutboundTransient, 7 * time.Second},
		{"server error", apiError(502, 0), domain.ErrOutboundTransient, 0},
		{"blocked", apiError(403, 0), domain.ErrOutboundPermanent, 0},
		{"bad request", apiError(400, 0), domain.ErrOutboundPermanent, 0},
		{"network", errors.New("connection reset by peer"), domain.ErrOutboundTransient, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(&mockRequester{RequestFunc: func(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
				return nil, tc.err
			}}, nil)
			err := c.Send(context.Background(), model.NewMessage(1, model.Content{Text: "x"}, time.Now()))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var se *domain.SendError
			if !errors.As(err, &se) || se.RetryAfter != tc.retryAfter {
				t.Fatalf("expected retry after %s, got %+v", tc.retryAfter, se)
			}
		})
	}
}

func TestSendRejectsInvalidActions(t *testing.T) {
	c := newClient(&mockRequester{}, nil)
	err := c.Send(context.Background(), model.NewMessage(1, model.Content{}, time.Now()))
	if !errors.Is(err, domain.ErrOutboundPermanent) {
		t.Fatalf("empty text must be permanent, got %v", err)
	}
}

func TestBreakerOpensOnServerErrorsOnly(t *testing.T) {
	calls := 0
	c := newClient(&mockRequester{RequestFunc: func(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
		calls++
		return nil, apiError(500, 0)
	}}, nil)
	for i := 0; i < 5; i++ {
		c.Send(context.Background(), model.NewMessage(1, model.Content{Text: "x"}, time.Now()))
	}
	if calls != 3 {
		t.Fatalf("expected the breaker to open after 3 failures, got %d calls", calls)
	}

	limited := 0
	c = newClient(&mockRequester{RequestFunc: func(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
		limited++
		return nil, apiError(429, 1)
	}}, nil)
	for i := 0; i < 5; i++ {
		c.Send(context.Background(), model.NewMessage(1, model.Content{Text: "x"}, time.Now()))
	}
	if limited != 5 {
		t.Fatalf("429 must not trip the breaker, got %d calls", limited)
	}
}

func TestSendHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := newClient(&mockRequester{RequestFunc: func(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
		<-release
		return &tgbotapi.APIResponse{Ok: true}, nil
	}}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Send(ctx, model.NewMessage(1, model.Content{Text: "x"}, time.Now())); !errors.Is(err, domain.ErrOutboundTransient) {
		t.Fatalf("expected transient error on timeout, got %v", err)
	}
}

func TestRegisterWebhookSendsSecret(t *testing.T) {
	var got tgbotapi.Params
	var endpoint string
	c := newClient(&mockRequester{MakeRequestFunc: func(e string, p tgbotapi.Params) (*tgbotapi.APIResponse, error) {
		endpoint, got = e, p
		return &tgbotapi.APIResponse{Ok: true}, nil
	}}, nil)
	if err := c.RegisterWebhook(context.Background(), "https://bot.example.org/webhook", "s3cret"); err != nil {
		t.Fatalf("RegisterWebhook: %v", err)
	}
	if endpoint != "setWebhook" || got["url"] != "https://bot.example.org/webhook" || got["secret_token"] != "s3cret" {
		t.Fatalf("unexpected request %s %v", endpoint, got)
	}
	if got["allowed_updates"] == "" {
		t.Fatal("allowed_updates not set")
	}
}
