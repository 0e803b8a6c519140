//go:build !integration

package usecase

import (
	"context"
	"fmt"
	"time"

	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/adapter"
)

// keyTexts renders "key" or "key[args]" so tests can assert on keys.
type keyTexts struct{}

func (keyTexts) T(key string, args ...any) string {
	if len(args) == 0 {
		return key
	}
	return fmt.Sprintf("%s%v", key, args)
}

type mockEvaluator struct {
	EvaluateFunc func(ctx context.Context, req adapter.EvaluationRequest) (adapter.Evaluation, error)
	calls        []adapter.EvaluationRequest
}

func (m *mockEvaluator) Evaluate(ctx context.Context, req adapter.EvaluationRequest) (adapter.Evaluation, error) {
	m.calls = append(m.calls, req)
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, req)
	}
	return adapter.Evaluation{Feedback: "ok", Provider: "mock"}, nil
}

func fixedBank() *QuestionBank {
	b := NewQuestionBank([]Question{
		{Direction: model.DirectionItalian, Sentence: "Buongiorno"},
		{Direction: model.DirectionEnglish, Sentence: "Good night"},
	}, []string{"Bravo!"})
	b.pick = func(int) int { return 0 }
	return b
}

func textUpdate(id, chat int64, text string) model.Update {
	return model.Update{ID: id, ChatID: chat, SenderID: chat, Kind: model.KindText, Payload: text, MessageID: int(id), ReceivedAt: time.Now()}
}

func callbackUpdate(id, chat int64, data string) model.Update {
	return model.Update{ID: id, ChatID: chat, SenderID: chat, Kind: model.KindCallback, Payload: data, CallbackID: fmt.Sprintf("cb-%d", id), ReceivedAt: time.Now()}
}

func boolPtr(v bool) *bool { return &v }
