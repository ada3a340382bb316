// Package oracle abstracts the LLM used for plan decomposition. The engine
// never requires an oracle: every caller must tolerate an error or a NopClient
// and fall back to rule-based behavior.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client is the minimal completion surface the decomposer needs.
type Client interface {
	// Complete sends a prompt and returns the raw model text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrNotConfigured is returned by NopClient and by New when no provider is set.
var ErrNotConfigured = errors.New("oracle not configured")

// NopClient is the stand-in when no provider is configured. Every call fails
// with ErrNotConfigured, which callers treat as "use the rule-based path".
type NopClient struct{}

func (NopClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", ErrNotConfigured
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string        `json:"provider"` // "gemini", "genai", or "" for none
	APIKey   string        `json:"api_key"`
	Model    string        `json:"model"`
	BaseURL  string        `json:"base_url,omitempty"`
	Timeout  time.Duration `json:"-"`
}

// New builds a client for the configured provider. An empty provider yields
// a NopClient, not an error; only a misconfigured provider errors.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return NopClient{}, nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini: %w: missing api key", ErrNotConfigured)
		}
		return NewGeminiClient(cfg), nil
	case "genai":
		return NewGenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}
