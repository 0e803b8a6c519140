// Package evaluator grades learner translations with an LLM provider.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-bot-italian/internal/config"
	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/adapter"
	"tg-bot-italian/internal/infra/logging"
	"tg-bot-italian/internal/infra/metrics"
)

// completer sends one prompt to a provider and returns the raw text.
type completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

var _ adapter.Evaluator = (*Evaluator)(nil)

// Evaluator builds the tutor prompt, calls the provider and parses the
// verdict lines out of the reply.
type Evaluator struct {
	provider completer
	timeout  time.Duration
	log      *zerolog.Logger
}

// New picks the provider named in cfg and wraps it with the concurrency limit.
func New(ctx context.Context, cfg config.EvaluatorConfig, log *zerolog.Logger) (adapter.Evaluator, error) {
	if log == nil {
		log = logging.Nop()
	}
	var (
		p   completer
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "mock":
		p = newMock()
	case "openai":
		p, err = newOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "gemini":
		p, err = newGemini(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("evaluator: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	e := &Evaluator{provider: p, timeout: cfg.Timeout, log: logging.Component(log, "evaluator")}
	e.log.Info().Str("provider", p.Name()).Int("max_concurrent", cfg.MaxConcurrent).Msg("evaluator ready")
	return NewLimited(e, cfg.MaxConcurrent), nil
}

func (e *Evaluator) Evaluate(ctx context.Context, req adapter.EvaluationRequest) (adapter.Evaluation, error) {
	if strings.TrimSpace(req.Answer) == "" {
		return adapter.Evaluation{}, errors.New("evaluator: empty answer")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := e.provider.Complete(ctx, buildPrompt(req))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		metrics.ObserveEvaluation(e.provider.Name(), "failed", time.Since(start), false)
		return adapter.Evaluation{}, fmt.Errorf("evaluator %s: %w", e.provider.Name(), err)
	}

	ev := parseReply(text)
	ev.Provider = e.provider.Name()
	metrics.ObserveEvaluation(ev.Provider, verdictLabel(ev.Correct), time.Since(start), true)
	logging.With(ctx, e.log).Debug().
		Str("qid", req.QuestionID).
		Str("verdict", verdictLabel(ev.Correct)).
		Dur("took", time.Since(start)).
		Msg("answer evaluated")
	return ev, nil
}

func verdictLabel(correct *bool) string {
	switch {
	case correct == nil:
		return "unknown"
	case *correct:
		return "correct"
	default:
		return "wrong"
	}
}

func targetLanguage(d model.Direction) string {
	if d == model.DirectionItalian {
		return "English"
	}
	return "Italian"
}

func directionLabel(d model.Direction) string {
	if d == model.DirectionItalian {
		return "Italian → English"
	}
	return "English → Italian"
}
