package oracle

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"planforge/internal/logging"
)

// GenAIClient wraps the official Google GenAI SDK. Preferred over the raw
// REST client when the SDK's transport features (API versioning, backend
// selection) matter; both satisfy Client.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates an SDK-backed client.
func NewGenAIClient(cfg Config) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai: %w: missing api key", ErrNotConfigured)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIClient{client: client, model: model}, nil
}

// Complete sends a single-turn prompt and returns the response text.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	logging.OracleDebug("genai: complete model=%s prompt_len=%d", c.model, len(prompt))

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("genai completion failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return text, nil
}
