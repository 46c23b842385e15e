package generation

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/upb/studygen/services/providers"
)

// Fault is the category a failed attempt falls into. It decides whether the
// cascade moves to the next provider, the next group, or stops.
type Fault string

const (
	FaultNone      Fault = ""
	FaultFatal     Fault = "fatal"
	FaultQuota     Fault = "quota"
	FaultTransient Fault = "transient"
	FaultUnknown   Fault = "unknown"
)

// ErrInvalidOutput marks a provider response that could not be turned into
// an object of the expected shape.
var ErrInvalidOutput = errors.New("provider output rejected")

var (
	fatalCodes = map[string]bool{
		"invalid_api_key":      true,
		"authentication_error": true,
		"permission_error":     true,
		"permission_denied":    true,
		"unauthorized":         true,
		"MISSING_API_KEY":      true,
		"UNAUTHENTICATED":      true,
		"PERMISSION_DENIED":    true,
	}

	quotaCodes = map[string]bool{
		"insufficient_quota":         true,
		"rate_limit":                 true,
		"rate_limit_exceeded":        true,
		"rate_limit_error":           true,
		"quota_exceeded":             true,
		"RESOURCE_EXHAUSTED":         true,
		providers.CodeLocalRateLimit: true,
	}

	transientCodes = map[string]bool{
		providers.CodeConnectionReset:   true,
		providers.CodeConnectionRefused: true,
		providers.CodeTimeout:           true,
		providers.CodeDNS:               true,
		"EAI_AGAIN":                     true,
		"ECONNABORTED":                  true,
		"server_error":                  true,
		"overloaded_error":              true,
		"UNAVAILABLE":                   true,
		"DEADLINE_EXCEEDED":             true,
	}

	fatalPhrases     = []string{"invalid api key", "incorrect api key", "unauthorized", "authentication failed"}
	quotaPhrases     = []string{"insufficient quota", "quota exceeded", "exceeded your current quota", "rate limit", "too many requests"}
	transientPhrases = []string{"timeout", "timed out", "connection reset", "connection refused", "no such host", "temporarily unavailable"}
)

// Classify maps a failed attempt to a Fault using only what the error
// exposes: status code, code string, wrapped transport errors and message.
func Classify(err error) Fault {
	if err == nil {
		return FaultNone
	}
	if errors.Is(err, ErrInvalidOutput) {
		return FaultUnknown
	}

	var status int
	var code string
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		status = provErr.StatusCode
		code = provErr.Code
	}
	message := strings.ToLower(err.Error())

	// Fatal
	if errors.Is(err, providers.ErrMissingCredentials) || errors.Is(err, providers.ErrProviderNotFound) {
		return FaultFatal
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden || fatalCodes[code] || containsAny(message, fatalPhrases) {
		return FaultFatal
	}

	// Quota
	if status == http.StatusTooManyRequests || quotaCodes[code] || containsAny(message, quotaPhrases) {
		return FaultQuota
	}

	// Transient
	if status >= http.StatusInternalServerError || status == http.StatusRequestTimeout || transientCodes[code] {
		return FaultTransient
	}
	if isTransportFailure(err) || containsAny(message, transientPhrases) || providers.IsRetryable(err) {
		return FaultTransient
	}

	return FaultUnknown
}

// Effective folds FaultUnknown into FaultTransient for cascade decisions
func (f Fault) Effective() Fault {
	if f == FaultUnknown {
		return FaultTransient
	}
	return f
}

func isTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
