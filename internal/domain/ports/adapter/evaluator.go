package adapter

import (
	"context"

	"tg-bot-italian/internal/domain/model"
)

type EvaluationRequest struct {
	QuestionID string
	Direction  model.Direction
	Source     string
	Answer     string
}

type Evaluation struct {
	Feedback           string
	CorrectTranslation string
	// Correct is nil when the provider gave no verdict line.
	Correct  *bool
	Provider string
}

// Evaluator grades a learner's translation.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (Evaluation, error)
}
