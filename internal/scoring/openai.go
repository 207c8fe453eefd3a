package scoring

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const (
	scoreTemperature = 0.3
	scoreMaxTokens   = 150
)

// OpenAIScorer scores videos with an OpenAI-compatible chat model.
type OpenAIScorer struct {
	client *openai.Client
	model  string
}

// NewOpenAIScorer builds a scorer on the chat completions API. baseURL may
// be empty to use the public endpoint.
func NewOpenAIScorer(apiKey, model, baseURL string) (*OpenAIScorer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("scoring.NewOpenAIScorer: api key not configured")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIScorer{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (s *OpenAIScorer) Score(ctx context.Context, in ScoreInput) (Score, error) {
	const op = "scoring.OpenAIScorer.Score"
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(in)},
		},
		Temperature: scoreTemperature,
		MaxTokens:   scoreMaxTokens,
	})
	if err != nil {
		return Score{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return Score{}, fmt.Errorf("%s: %w: no choices", op, ErrMalformedScore)
	}
	score, err := parseScore(resp.Choices[0].Message.Content)
	if err != nil {
		return Score{}, fmt.Errorf("%s: %w", op, err)
	}
	return score, nil
}
