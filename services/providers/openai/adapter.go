package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/studygen/services/providers"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
)

// OpenAIAdapter implements providers.Client for OpenAI-compatible chat
// completion APIs. It is the remote, quota-limited transport.
type OpenAIAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	adapter := &OpenAIAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}

	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		adapter.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return adapter
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Generate performs a single chat completion and returns the assistant text
func (a *OpenAIAdapter) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	startTime := time.Now()

	if strings.TrimSpace(a.config.APIKey) == "" {
		return nil, providers.NewProviderError(a.Name(), "MISSING_API_KEY", "OpenAI API key is not configured", 0, false, providers.ErrMissingCredentials)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, providers.NewProviderError(a.Name(), "INVALID_REQUEST", "Prompt is empty", http.StatusBadRequest, false, providers.ErrEmptyPrompt)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// A wait that cannot finish before the deadline means the local quota
	// is spent for this attempt.
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, providers.NewProviderError(a.Name(), providers.CodeLocalRateLimit, "Request pacing exceeded attempt deadline", http.StatusTooManyRequests, true, err)
		}
	}

	reqBody, err := json.Marshal(a.buildOpenAIRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.WrapTransportError(a.Name(), err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.WrapTransportError(a.Name(), err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var openaiResp OpenAIChatResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, true, err)
	}
	if len(openaiResp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "Response contained no choices", httpResp.StatusCode, true, nil)
	}

	return &providers.GenerateResponse{
		Text:     openaiResp.Choices[0].Message.Content,
		Model:    openaiResp.Model,
		Provider: a.Name(),
		Usage: providers.Usage{
			PromptTokens:     openaiResp.Usage.PromptTokens,
			CompletionTokens: openaiResp.Usage.CompletionTokens,
			TotalTokens:      openaiResp.Usage.TotalTokens,
		},
		Latency: time.Since(startTime),
	}, nil
}

// buildOpenAIRequest converts a generation request to OpenAI format
func (a *OpenAIAdapter) buildOpenAIRequest(req *providers.GenerateRequest) *OpenAIChatRequest {
	openaiReq := &OpenAIChatRequest{
		Model: req.Model,
	}

	if req.System != "" {
		openaiReq.Messages = append(openaiReq.Messages, OpenAIMessage{Role: "system", Content: req.System})
	}
	openaiReq.Messages = append(openaiReq.Messages, OpenAIMessage{Role: "user", Content: req.Prompt})

	if req.MaxTokens > 0 {
		openaiReq.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		openaiReq.Temperature = &req.Temperature
	}
	if req.JSONMode {
		openaiReq.ResponseFormat = &OpenAIResponseFormat{Type: "json_object"}
	}

	return openaiReq
}

// handleErrorResponse handles OpenAI error responses
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := providers.RetryableStatus(statusCode)

	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", fmt.Sprintf("OpenAI returned status %d", statusCode), statusCode, retryable, errors.New(string(body)))
	}

	code := errResp.Error.Code
	if code == "" {
		code = errResp.Error.Type
	}

	return providers.NewProviderError(
		a.Name(),
		code,
		errResp.Error.Message,
		statusCode,
		retryable,
		nil,
	)
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []OpenAIMessage       `json:"messages"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	Temperature    *float64              `json:"temperature,omitempty"`
	ResponseFormat *OpenAIResponseFormat `json:"response_format,omitempty"`
}

type OpenAIResponseFormat struct {
	Type string `json:"type"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
