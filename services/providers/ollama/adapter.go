package ollama

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
)

const (
	defaultBaseURL = "http://localhost:11434"
)

// OllamaAdapter implements providers.Client for a local Ollama daemon.
// The daemon is unmetered, so there is no key and no pacing.
type OllamaAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewOllamaAdapter creates a new Ollama adapter
func NewOllamaAdapter(config providers.ProviderConfig) *OllamaAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	return &OllamaAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name
func (a *OllamaAdapter) Name() string {
	return "ollama"
}

// Generate runs a non-streaming /api/generate call
func (a *OllamaAdapter) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	startTime := time.Now()

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, providers.NewProviderError(a.Name(), "INVALID_REQUEST", "Prompt is empty", http.StatusBadRequest, false, providers.ErrEmptyPrompt)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	reqBody, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
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

	var genResp GenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, true, err)
	}

	return &providers.GenerateResponse{
		Text:     genResp.Response,
		Model:    genResp.Model,
		Provider: a.Name(),
		Usage: providers.Usage{
			PromptTokens:     genResp.PromptEvalCount,
			CompletionTokens: genResp.EvalCount,
			TotalTokens:      genResp.PromptEvalCount + genResp.EvalCount,
		},
		Latency: time.Since(startTime),
	}, nil
}

func (a *OllamaAdapter) buildRequest(req *providers.GenerateRequest) *GenerateRequest {
	out := &GenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
	}
	if req.JSONMode {
		out.Format = "json"
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		out.Options = &ModelOptions{}
		if req.MaxTokens > 0 {
			out.Options.NumPredict = req.MaxTokens
		}
		if req.Temperature > 0 {
			t := req.Temperature
			out.Options.Temperature = &t
		}
	}
	return out
}

// handleErrorResponse maps daemon errors; a missing model is a 404.
func (a *OllamaAdapter) handleErrorResponse(statusCode int, body []byte) error {
	retryable := providers.RetryableStatus(statusCode)

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", fmt.Sprintf("Ollama returned status %d", statusCode), statusCode, retryable, errors.New(string(body)))
	}

	code := "ollama_error"
	if statusCode == http.StatusNotFound {
		code = "model_not_found"
	}

	return providers.NewProviderError(a.Name(), code, errResp.Error, statusCode, retryable, nil)
}

// Ollama-specific request/response types

type GenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Format  string        `json:"format,omitempty"`
	Stream  bool          `json:"stream"`
	Options *ModelOptions `json:"options,omitempty"`
}

type ModelOptions struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type GenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
