package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/upb/studygen/services/providers"
)

func TestNewOpenAIAdapter(t *testing.T) {
	config := providers.ProviderConfig{
		APIKey: "test-key",
	}

	adapter := NewOpenAIAdapter(config)

	if adapter == nil {
		t.Fatal("NewOpenAIAdapter() returned nil")
	}

	if adapter.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", adapter.Name())
	}

	if adapter.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, defaultBaseURL)
	}

	if adapter.limiter != nil {
		t.Error("Limiter should be nil when pacing is disabled")
	}

	paced := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", RequestsPerSecond: 2})
	if paced.limiter == nil {
		t.Error("Limiter should be set when RequestsPerSecond > 0")
	}
}

func TestOpenAIAdapter_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}

		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			t.Error("Authorization header missing or invalid")
		}

		body, _ := io.ReadAll(r.Body)
		var req OpenAIChatRequest
		_ = json.Unmarshal(body, &req)

		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("Expected system + user messages, got %+v", req.Messages)
		}
		if req.MaxTokens == nil || *req.MaxTokens != 256 {
			t.Error("max_tokens not forwarded")
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("response_format not set for JSON mode")
		}

		resp := OpenAIChatResponse{
			ID:      "chatcmpl-test123",
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   req.Model,
			Choices: []OpenAIChoice{
				{
					Index:        0,
					Message:      OpenAIMessage{Role: "assistant", Content: `{"title":"Photosynthesis"}`},
					FinishReason: "stop",
				},
			},
			Usage: OpenAIUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:  "test-key",
		BaseURL: server.URL + "/",
		Timeout: 5 * time.Second,
	})

	resp, err := adapter.Generate(context.Background(), &providers.GenerateRequest{
		Model:     "gpt-4o-mini",
		Prompt:    "Summarize photosynthesis",
		System:    "Respond with JSON only",
		MaxTokens: 256,
		JSONMode:  true,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if resp.Provider != "openai" {
		t.Errorf("Provider = %s, want openai", resp.Provider)
	}

	if resp.Text != `{"title":"Photosynthesis"}` {
		t.Errorf("Unexpected response text: %s", resp.Text)
	}

	if resp.Usage.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30", resp.Usage.TotalTokens)
	}
}

func TestOpenAIAdapter_Generate_ErrorResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  string
		retryable bool
	}{
		{
			name:      "invalid api key",
			status:    http.StatusUnauthorized,
			body:      `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantCode:  "invalid_api_key",
			retryable: false,
		},
		{
			name:      "insufficient quota",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`,
			wantCode:  "insufficient_quota",
			retryable: true,
		},
		{
			name:      "type used when code missing",
			status:    http.StatusInternalServerError,
			body:      `{"error":{"message":"The server had an error","type":"server_error","code":null}}`,
			wantCode:  "server_error",
			retryable: true,
		},
		{
			name:      "non json body",
			status:    http.StatusBadGateway,
			body:      `<html>bad gateway</html>`,
			wantCode:  "UNKNOWN_ERROR",
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})

			_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "gpt-4o", Prompt: "test"})
			if err == nil {
				t.Fatal("Expected error but got none")
			}

			var provErr *providers.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("Expected ProviderError, got %T", err)
			}

			if provErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, tt.status)
			}
			if provErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", provErr.Code, tt.wantCode)
			}
			if provErr.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", provErr.Retryable, tt.retryable)
			}
		})
	}
}

func TestOpenAIAdapter_Generate_NoRetryOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})
	_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "gpt-4o", Prompt: "test"})
	if err == nil {
		t.Fatal("Expected error but got none")
	}

	// Fallback belongs to the cascade, so the adapter makes exactly one call.
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestOpenAIAdapter_Generate_MissingKey(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{})

	_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{Model: "gpt-4o", Prompt: "test"})
	if !errors.Is(err, providers.ErrMissingCredentials) {
		t.Errorf("error = %v, want ErrMissingCredentials", err)
	}
}

func TestOpenAIAdapter_Generate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "k", BaseURL: server.URL})

	_, err := adapter.Generate(context.Background(), &providers.GenerateRequest{
		Model:   "gpt-4o",
		Prompt:  "test",
		Timeout: 50 * time.Millisecond,
	})

	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %T (%v)", err, err)
	}
	if provErr.Code != providers.CodeTimeout {
		t.Errorf("Code = %s, want %s", provErr.Code, providers.CodeTimeout)
	}
}

func TestOpenAIAdapter_Generate_PacingExceedsDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(OpenAIChatResponse{
			Choices: []OpenAIChoice{{Message: OpenAIMessage{Role: "assistant", Content: "{}"}}},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:            "k",
		BaseURL:           server.URL,
		RequestsPerSecond: 0.01,
		Burst:             1,
	})

	req := &providers.GenerateRequest{Model: "gpt-4o", Prompt: "test", Timeout: 100 * time.Millisecond}
	if _, err := adapter.Generate(context.Background(), req); err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}

	_, err := adapter.Generate(context.Background(), req)
	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %T (%v)", err, err)
	}
	if provErr.StatusCode != http.StatusTooManyRequests || provErr.Code != providers.CodeLocalRateLimit {
		t.Errorf("got status %d code %s, want 429 %s", provErr.StatusCode, provErr.Code, providers.CodeLocalRateLimit)
	}
}
