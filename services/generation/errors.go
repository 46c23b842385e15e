package generation

import (
	"errors"
	"fmt"

	"github.com/upb/studygen/services"
	"github.com/upb/studygen/services/providers"
)

// GenerationFailure is the error Run returns. It carries the failure kind,
// the last underlying error and the full trace.
type GenerationFailure struct {
	*services.DomainError
	Trace *Trace
}

// Unwrap exposes the DomainError so errors.Is and errors.As reach the kind
// and the underlying cause.
func (f *GenerationFailure) Unwrap() error {
	return f.DomainError
}

var kindNames = map[services.ErrorType]string{
	services.ErrorTypeValidation:         "InvalidRequest",
	services.ErrorTypeConfig:             "ConfigError",
	services.ErrorTypeAuth:               "AuthError",
	services.ErrorTypeQuotaExhausted:     "QuotaExhausted",
	services.ErrorTypeParse:              "ParseError",
	services.ErrorTypeDeadlineExceeded:   "DeadlineExceeded",
	services.ErrorTypeAllProvidersFailed: "AllProvidersFailed",
}

// Kind returns the public name of the failure kind
func (f *GenerationFailure) Kind() string {
	if name, ok := kindNames[f.Type]; ok {
		return name
	}
	return "InternalError"
}

// newFailure builds a failure of the sentinel's kind. An empty message
// falls back to the sentinel's. The attempt count rides along as a detail.
func newFailure(kind *services.DomainError, message string, cause error, trace *Trace) *GenerationFailure {
	if message == "" {
		message = kind.Message
	}
	de := services.NewDomainError(kind.Type, message, cause).WithDetail("attempts", trace.Len())
	return &GenerationFailure{DomainError: de, Trace: trace}
}

// fatalFailure reports a fatal fault as ConfigError when the cause is local
// configuration and as AuthError when a provider rejected the call.
func fatalFailure(cause error, trace *Trace) *GenerationFailure {
	if errors.Is(cause, providers.ErrMissingCredentials) || errors.Is(cause, providers.ErrProviderNotFound) {
		return newFailure(services.ErrNoProviders, "provider is not configured", cause, trace)
	}
	return newFailure(services.ErrCredentialsRejected, "", cause, trace)
}

// exhaustedFailure picks the kind once every group has been tried
func exhaustedFailure(cause error, trace *Trace) *GenerationFailure {
	var generate []AttemptRecord
	for _, rec := range trace.attempts {
		if rec.Purpose == PurposeGenerate {
			generate = append(generate, rec)
		}
	}

	allQuota, allParse := len(generate) > 0, len(generate) > 0
	for _, rec := range generate {
		allQuota = allQuota && rec.Fault == FaultQuota
		allParse = allParse && rec.Outcome == OutcomeParseFailed
	}

	switch {
	case allQuota:
		return newFailure(services.ErrQuotaExhausted, "every provider reported quota exhaustion", cause, trace)
	case allParse:
		return newFailure(services.ErrUnparseableOutput, "", cause, trace)
	default:
		return newFailure(services.ErrAllProvidersFailed, fmt.Sprintf("all %d attempts failed", len(generate)), cause, trace)
	}
}
