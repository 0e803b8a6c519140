package evaluator

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

type chatCompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// openAI talks to the Chat Completions API or any compatible server, such as
// Ollama's /v1 endpoint, when baseURL is set.
type openAI struct {
	chat  chatCompletions
	model string
}

func newOpenAI(apiKey, baseURL, model string) (*openAI, error) {
	if apiKey == "" && baseURL == "" {
		return nil, errors.New("openai: empty api key")
	}
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	cli := openai.NewClient(opts...)
	return &openAI{chat: &cli.Chat.Completions, model: model}, nil
}

func (*openAI) Name() string { return "openai" }

func (o *openAI) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", err
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("openai: no choice content")
}
