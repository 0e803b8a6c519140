package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"tg-bot-italian/internal/config"
	"tg-bot-italian/internal/domain"
	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/adapter"
	"tg-bot-italian/internal/infra/logging"
)

var _ adapter.ChatAPIClient = (*Client)(nil)

// AllowedUpdates is what the bot subscribes to, both for setWebhook and getUpdates.
var AllowedUpdates = []string{"message", "edited_message", "callback_query"}

// requester is the subset of *tgbotapi.BotAPI the client uses.
type requester interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Client sends outbound actions through the Bot API behind a circuit breaker.
type Client struct {
	api     requester
	bot     *tgbotapi.BotAPI
	breaker *gobreaker.CircuitBreaker[*tgbotapi.APIResponse]
	log     *zerolog.Logger
}

// NewClient connects to the Bot API (one getMe call) using an HTTP client
// bounded by sendTimeout.
func NewClient(cfg config.BotConfig, sendTimeout time.Duration, log *zerolog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: bot token is empty")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	// long polling holds requests for up to a minute
	httpClient := &http.Client{Timeout: sendTimeout + 70*time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	c := newClient(bot, log)
	c.bot = bot
	c.log.Info().Str("username", bot.Self.UserName).Msg("connected to bot api")
	return c, nil
}

func newClient(api requester, log *zerolog.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	c := &Client{api: api, log: logging.Component(log, "telegram")}
	c.breaker = gobreaker.NewCircuitBreaker[*tgbotapi.APIResponse](gobreaker.Settings{
		Name:        "telegram-sender",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return c
}

// API exposes the underlying bot for long polling. Nil for test clients.
func (c *Client) API() *tgbotapi.BotAPI { return c.bot }

func (c *Client) Send(ctx context.Context, a model.OutboundAction) error {
	msg, err := chattable(a)
	if err != nil {
		return domain.Permanent(err)
	}
	_, err = c.breaker.Execute(func() (*tgbotapi.APIResponse, error) {
		return c.request(ctx, msg)
	})
	return classify(err)
}

// RegisterWebhook points the bot at url. setWebhook is called with raw params
// because the typed config predates secret_token.
func (c *Client) RegisterWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	if secret != "" {
		params["secret_token"] = secret
	}
	if err := params.AddInterface("allowed_updates", AllowedUpdates); err != nil {
		return err
	}
	_, err := c.call(ctx, func() (*tgbotapi.APIResponse, error) {
		return c.api.MakeRequest("setWebhook", params)
	})
	if err != nil {
		return fmt.Errorf("telegram: setWebhook: %w", err)
	}
	return nil
}

// DeleteWebhook is needed before getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.request(ctx, tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		return fmt.Errorf("telegram: deleteWebhook: %w", err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.call(ctx, func() (*tgbotapi.APIResponse, error) { return c.api.Request(msg) })
}

// call runs fn but stops waiting when ctx ends. tgbotapi has no context
// support; the HTTP client timeout bounds the abandoned call.
func (c *Client) call(ctx context.Context, fn func() (*tgbotapi.APIResponse, error)) (*tgbotapi.APIResponse, error) {
	type result struct {
		resp *tgbotapi.APIResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := fn()
		done <- result{resp, err}
	}()
	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func chattable(a model.OutboundAction) (tgbotapi.Chattable, error) {
	switch a.Kind {
	case model.ActionAnswerCallback:
		if a.CallbackID == "" {
			return nil, errors.New("callback answer without callback id")
		}
		return tgbotapi.NewCallback(a.CallbackID, a.Content.Text), nil
	case model.ActionSendMessage:
		if a.Content.Text == "" {
			return nil, errors.New("empty message text")
		}
		msg := tgbotapi.NewMessage(a.ChatID, a.Content.Text)
		msg.ParseMode = a.Content.ParseMode
		msg.ReplyToMessageID = a.Content.ReplyToMessageID
		switch {
		case len(a.Content.Buttons) > 0:
			msg.ReplyMarkup = keyboard(a.Content.Buttons)
		case a.Content.ForceReply:
			msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true}
		}
		return msg, nil
	}
	return nil, fmt.Errorf("unknown action kind %q", a.Kind)
}

func keyboard(rows [][]model.Button) tgbotapi.InlineKeyboardMarkup {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			if btn.URL != "" {
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(btn.Text, btn.URL))
				continue
			}
			data := btn.Data
			if data == "" {
				data = btn.Text
			}
			r = append(r, tgbotapi.NewInlineKeyboardButtonData(btn.Text, data))
		}
		if len(r) > 0 {
			kbRows = append(kbRows, r)
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...)
}

// classify maps a Bot API failure onto the outbound error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.Transient(err, 0)
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return domain.Transient(err, time.Duration(apiErr.RetryAfter)*time.Second)
		case apiErr.Code >= 500:
			return domain.Transient(err, 0)
		default:
			// 400 bad request, 403 blocked by user, 404 chat not found
			return domain.Permanent(err)
		}
	}
	// network errors, timeouts, undecodable proxy responses
	return domain.Transient(err, 0)
}

// isBreakerSuccess keeps client errors (including 429) from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500
	}
	return errors.Is(err, context.Canceled)
}
