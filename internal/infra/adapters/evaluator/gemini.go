package evaluator

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

type gemini struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, apiKey, baseURL, model string) (*gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, err
	}
	return &gemini{client: c, model: model}, nil
}

func (*gemini) Name() string { return "gemini" }

func (g *gemini) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](temperature),
		MaxOutputTokens: 256,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
