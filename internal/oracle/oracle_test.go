package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func geminiServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *GeminiClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewGeminiClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
	return srv, client
}

func TestGeminiClient_Complete(t *testing.T) {
	_, client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "test-model") {
			t.Errorf("model missing from path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Error("api key missing from query")
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"world"}]}}]}`))
	})

	got, err := client.Complete(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "hello world" {
		t.Errorf("Complete = %q, want %q", got, "hello world")
	}
}

func TestGeminiClient_RetriesRateLimit(t *testing.T) {
	calls := 0
	_, client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	})

	got, err := client.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete failed after retry: %v", err)
	}
	if got != "ok" {
		t.Errorf("Complete = %q, want ok", got)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestGeminiClient_APIErrorIsFatal(t *testing.T) {
	calls := 0
	_, client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	})

	if _, err := client.Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected error on 400")
	}
	if calls != 1 {
		t.Errorf("client errors must not be retried, got %d calls", calls)
	}
}

func TestGeminiClient_EmptyCandidates(t *testing.T) {
	_, client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})
	if _, err := client.Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected error on empty candidates")
	}
}

func TestGeminiClient_MissingKey(t *testing.T) {
	client := NewGeminiClient(Config{Model: "m"})
	_, err := client.Complete(context.Background(), "p")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNopClient(t *testing.T) {
	_, err := NopClient{}.Complete(context.Background(), "anything")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNew_ProviderSelection(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantErr  bool
		wantType string
	}{
		{"empty provider yields nop", Config{}, false, "oracle.NopClient"},
		{"none provider yields nop", Config{Provider: "none"}, false, "oracle.NopClient"},
		{"gemini needs key", Config{Provider: "gemini"}, true, ""},
		{"gemini with key", Config{Provider: "gemini", APIKey: "k"}, false, "*oracle.GeminiClient"},
		{"unknown provider", Config{Provider: "anthropic"}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			switch client.(type) {
			case NopClient:
				if tt.wantType != "oracle.NopClient" {
					t.Errorf("got NopClient, want %s", tt.wantType)
				}
			case *GeminiClient:
				if tt.wantType != "*oracle.GeminiClient" {
					t.Errorf("got *GeminiClient, want %s", tt.wantType)
				}
			default:
				t.Errorf("unexpected client type %T", client)
			}
		})
	}
}
