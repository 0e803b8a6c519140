package evaluator

import (
	"context"

	"tg-bot-italian/internal/domain/ports/adapter"
)

var _ adapter.Evaluator = (*limited)(nil)

type limited struct {
	inner adapter.Evaluator
	sem   chan struct{}
}

// NewLimited bounds in-flight evaluations. Waiting for a slot honours ctx.
func NewLimited(inner adapter.Evaluator, maxConcurrent int) adapter.Evaluator {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limited{inner: inner, sem: make(chan struct{}, maxConcurrent)}
}

func (l *limited) Evaluate(ctx context.Context, req adapter.EvaluationRequest) (adapter.Evaluation, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return adapter.Evaluation{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Evaluate(ctx, req)
}
