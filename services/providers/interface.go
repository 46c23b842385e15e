package providers

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMissingCredentials is returned when a client has no API key configured
	ErrMissingCredentials = errors.New("missing provider credentials")

	// ErrEmptyPrompt is returned when a generation request has no prompt
	ErrEmptyPrompt = errors.New("prompt is empty")
)

// Client is the uniform capability every text-generation backend exposes.
// Implementations must honor the context deadline and return errors that
// carry an HTTP-like status code or a transport error.
type Client interface {
	// Name returns the provider name used in provider descriptors (e.g., "openai", "ollama")
	Name() string

	// Generate sends a single prompt and returns the raw generated text
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// TransportKind describes how a provider is billed and reached
type TransportKind string

const (
	// TransportRemoteMetered is a remote, quota-limited API
	TransportRemoteMetered TransportKind = "remote-metered"

	// TransportLocalUnmetered is a local daemon with no quota
	TransportLocalUnmetered TransportKind = "local-unmetered"
)

// Options tunes a single generation call
type Options struct {
	// MaxTokens limits the response length (0 means provider default)
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens" validate:"gte=0"`

	// Temperature controls randomness (0 means provider default)
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature" validate:"gte=0,lte=2"`
}

// Descriptor names one provider/model pair inside a cascade
type Descriptor struct {
	// Name of the registered client that serves this descriptor
	Name string `json:"name" yaml:"name" validate:"required"`

	// Model identifier passed to the client
	Model string `json:"model" yaml:"model" validate:"required"`

	// Transport is informational; the cascade treats all kinds alike
	Transport TransportKind `json:"transport" yaml:"transport" validate:"required,oneof=remote-metered local-unmetered"`

	// Options are optional per-provider generation settings
	Options Options `json:"options,omitempty" yaml:"options"`
}

// GenerateRequest represents a single prompt sent to a provider
type GenerateRequest struct {
	// Model identifier (e.g., "gpt-4o-mini", "llama3.1:8b")
	Model string `json:"model"`

	// Prompt is the full user prompt
	Prompt string `json:"prompt"`

	// System is an optional system instruction
	System string `json:"system,omitempty"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// JSONMode asks the backend to constrain output to JSON when supported
	JSONMode bool `json:"json_mode,omitempty"`

	// Timeout for the request; the context deadline still wins when earlier
	Timeout time.Duration `json:"-"`
}

// GenerateResponse represents the raw output of a provider
type GenerateResponse struct {
	// Text is the generated text, unparsed
	Text string `json:"text"`

	// Model that produced the text
	Model string `json:"model"`

	// Provider that handled the request
	Provider string `json:"provider"`

	// Usage statistics when the backend reports them
	Usage Usage `json:"usage"`

	// Latency of the request
	Latency time.Duration `json:"latency"`
}

// Usage represents token usage statistics
type Usage struct {
	// PromptTokens used in the request
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens used in the response
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the sum of prompt and completion tokens
	TotalTokens int `json:"total_tokens"`
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout is the upper bound for a single HTTP exchange
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests (0 disables pacing)
	RequestsPerSecond float64

	// Burst is the pacing bucket size
	Burst int

	// Additional headers
	Headers map[string]string
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 60 * time.Second,
		Burst:   1,
		Headers: make(map[string]string),
	}
}

// Transport error codes carried in ProviderError.Code when no HTTP status exists
const (
	CodeConnectionReset   = "ECONNRESET"
	CodeConnectionRefused = "ECONNREFUSED"
	CodeTimeout           = "ETIMEDOUT"
	CodeDNS               = "ENOTFOUND"
	CodeLocalRateLimit    = "local_rate_limit"
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the provider error type or a transport error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if another provider may succeed where this one failed
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}
