//go:build !integration

package evaluator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"tg-bot-italian/internal/config"
	"tg-bot-italian/internal/domain/model"
	"tg-bot-italian/internal/domain/ports/adapter"
	"tg-bot-italian/internal/infra/logging"
)

type stubProvider struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	prompts      []string
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.CompleteFunc(ctx, prompt)
}

func newTestEvaluator(p completer) *Evaluator {
	return &Evaluator{provider: p, timeout: time.Second, log: logging.Nop()}
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		name        string
		text        string
		correct     *bool
		translation string
	}{
		{"correct", "Verdict: CORRECT\nCorrect translation: Good morning\nFeedback:\n- fine", boolPtr(true), "Good morning"},
		{"wrong in fence", "```\nVerdict: WRONG\nCorrect translation: Buongiorno\nFeedback:\n- tense\n```", boolPtr(false), "Buongiorno"},
		{"bold verdict", "Verdict: **CORRECT**", boolPtr(true), ""},
		{"no verdict", "✅ Received (mock).", nil, ""},
		{"unknown verdict", "Verdict: MAYBE", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := parseReply(tc.text)
			if (ev.Correct == nil) != (tc.correct == nil) || (ev.Correct != nil && *ev.Correct != *tc.correct) {
				t.Fatalf("unexpected verdict %v", ev.Correct)
			}
			if ev.CorrectTranslation != tc.translation {
				t.Fatalf("expected translation %q, got %q", tc.translation, ev.CorrectTranslation)
			}
			if strings.Contains(ev.Feedback, "```") || ev.Feedback == "" {
				t.Fatalf("unexpected feedback %q", ev.Feedback)
			}
		})
	}
}

func TestPromptTargetsLanguageByDirection(t *testing.T) {
	it := buildPrompt(adapter.EvaluationRequest{Direction: model.DirectionItalian, Source: "Ciao", Answer: "Hi"})
	if !strings.Contains(it, "MUST be in English") || !strings.Contains(it, `Source: "Ciao"`) {
		t.Fatalf("IT prompt must target English:\n%s", it)
	}
	en := buildPrompt(adapter.EvaluationRequest{Direction: model.DirectionEnglish, Source: "Hello", Answer: "Ciao"})
	if !strings.Contains(en, "MUST be in Italian") {
		t.Fatalf("EN prompt must target Italian:\n%s", en)
	}
}

func TestEvaluate(t *testing.T) {
	p := &stubProvider{CompleteFunc: func(context.Context, string) (string, error) {
		return "Verdict: CORRECT\nCorrect translation: Hello\nFeedback:\n- good", nil
	}}
	ev, err := newTestEvaluator(p).Evaluate(context.Background(), adapter.EvaluationRequest{
		QuestionID: "q1", Direction: model.DirectionItalian, Source: "Ciao", Answer: "Hello",
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Correct == nil || !*ev.Correct || ev.Provider != "stub" {
		t.Fatalf("unexpected evaluation %+v", ev)
	}
	if len(p.prompts) != 1 || !strings.Contains(p.prompts[0], `User: "Hello"`) {
		t.Fatalf("unexpected prompts %v", p.prompts)
	}
}

func TestEvaluateFailures(t *testing.T) {
	e := newTestEvaluator(&stubProvider{CompleteFunc: func(context.Context, string) (string, error) {
		return "  ", nil
	}})
	if _, err := e.Evaluate(context.Background(), adapter.EvaluationRequest{Answer: "x"}); err == nil {
		t.Fatal("empty completion must fail")
	}

	e = newTestEvaluator(&stubProvider{CompleteFunc: func(context.Context, string) (string, error) {
		return "", errors.New("503")
	}})
	if _, err := e.Evaluate(context.Background(), adapter.EvaluationRequest{Answer: "x"}); err == nil {
		t.Fatal("provider error must propagate")
	}

	if _, err := e.Evaluate(context.Background(), adapter.EvaluationRequest{Answer: " "}); err == nil {
		t.Fatal("blank answer must be rejected")
	}
}

func TestEvaluateTimeout(t *testing.T) {
	e := newTestEvaluator(&stubProvider{CompleteFunc: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}})
	e.timeout = 20 * time.Millisecond
	_, err := e.Evaluate(context.Background(), adapter.EvaluationRequest{Answer: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewMockProvider(t *testing.T) {
	ev, err := New(context.Background(), config.EvaluatorConfig{Provider: "mock"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := ev.Evaluate(context.Background(), adapter.EvaluationRequest{Answer: "ciao"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Feedback != "✅ Received (mock)." || got.Correct != nil || got.Provider != "mock" {
		t.Fatalf("unexpected mock evaluation %+v", got)
	}

	if _, err := New(context.Background(), config.EvaluatorConfig{Provider: "ollama-native"}, nil); err == nil {
		t.Fatal("unknown provider must be rejected")
	}
	if _, err := New(context.Background(), config.EvaluatorConfig{Provider: "gemini"}, nil); err == nil {
		t.Fatal("gemini without a key must be rejected")
	}
}

type stubCompletions struct {
	params openai.ChatCompletionNewParams
	resp   *openai.ChatCompletion
}

func (s *stubCompletions) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	s.params = body
	return s.resp, nil
}

func TestOpenAIComplete(t *testing.T) {
	stub := &stubCompletions{resp: &openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Content: ""}},
		{Message: openai.ChatCompletionMessage{Content: "Verdict: WRONG"}},
	}}}
	o := &openAI{chat: stub, model: "llama3.2:1b"}
	got, err := o.Complete(context.Background(), "prompt")
	if err != nil || got != "Verdict: WRONG" {
		t.Fatalf("unexpected completion %q %v", got, err)
	}
	if stub.params.Model != "llama3.2:1b" || stub.params.Temperature.Value != temperature {
		t.Fatalf("unexpected params %+v", stub.params)
	}

	stub.resp = &openai.ChatCompletion{}
	if _, err := o.Complete(context.Background(), "prompt"); err == nil {
		t.Fatal("no choices must fail")
	}
}

type slowEvaluator struct {
	inFlight, peak atomic.Int32
}

func (s *slowEvaluator) Evaluate(ctx context.Context, _ adapter.EvaluationRequest) (adapter.Evaluation, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return adapter.Evaluation{}, nil
}

func TestLimitedBoundsConcurrency(t *testing.T) {
	inner := &slowEvaluator{}
	l := NewLimited(inner, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Evaluate(context.Background(), adapter.EvaluationRequest{})
		}()
	}
	wg.Wait()
	if p := inner.peak.Load(); p > 2 {
		t.Fatalf("expected at most 2 concurrent evaluations, saw %d", p)
	}

	full := NewLimited(&slowEvaluator{}, 1).(*limited)
	full.sem <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := full.Evaluate(ctx, adapter.EvaluationRequest{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while waiting for a slot, got %v", err)
	}
}

func boolPtr(b bool) *bool { return &b }
