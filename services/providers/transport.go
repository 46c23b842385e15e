package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// WrapTransportError converts a failed HTTP round trip into a ProviderError
// whose Code names the transport failure.
func WrapTransportError(provider string, err error) *ProviderError {
	code := "HTTP_ERROR"
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.As(err, &dnsErr):
		code = CodeDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		code = CodeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		code = CodeConnectionReset
	case errors.As(err, &netErr) && netErr.Timeout():
		code = CodeTimeout
	}

	return NewProviderError(provider, code, "HTTP request failed", 0, true, err)
}

// RetryableStatus reports whether another provider may succeed after a
// response with this status.
func RetryableStatus(statusCode int) bool {
	return statusCode >= http.StatusInternalServerError ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout
}
