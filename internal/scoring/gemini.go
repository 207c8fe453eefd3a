package scoring

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiScorer scores videos with a Gemini model.
type GeminiScorer struct {
	client *genai.Client
	model  string
}

type GeminiOption func(*genai.ClientConfig)

// WithGeminiBaseURL routes requests to a non-default API host.
func WithGeminiBaseURL(u string) GeminiOption {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = u
	}
}

// NewGeminiScorer builds a scorer on the Gemini API.
func NewGeminiScorer(ctx context.Context, apiKey, model string, opts ...GeminiOption) (*GeminiScorer, error) {
	const op = "scoring.NewGeminiScorer"
	if apiKey == "" {
		return nil, fmt.Errorf("%s: api key not configured", op)
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiScorer{client: client, model: model}, nil
}

func (s *GeminiScorer) Score(ctx context.Context, in ScoreInput) (Score, error) {
	const op = "scoring.GeminiScorer.Score"
	result, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(buildPrompt(in)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](scoreTemperature),
		MaxOutputTokens:   scoreMaxTokens,
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return Score{}, fmt.Errorf("%s: %w", op, err)
	}
	score, err := parseScore(result.Text())
	if err != nil {
		return Score{}, fmt.Errorf("%s: %w", op, err)
	}
	return score, nil
}
