package services

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType is the category of a failed external API call
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeServer     ErrorType = "server"
	ErrorTypeClient     ErrorType = "client"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// APIError is a classified failure from an external provider
type APIError struct {
	Service    string
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Service, e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Service, e.Type, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// NewTransportError classifies a transport-level failure
func NewTransportError(service string, cause error) *APIError {
	if errors.Is(cause, context.DeadlineExceeded) {
		return &APIError{Service: service, Type: ErrorTypeTimeout, Retryable: true, Message: "request timed out", Cause: cause}
	}
	var netErr net.Error
	if errors.As(cause, &netErr) && netErr.Timeout() {
		return &APIError{Service: service, Type: ErrorTypeTimeout, Retryable: true, Message: "request timed out", Cause: cause}
	}
	return &APIError{Service: service, Type: ErrorTypeNetwork, Retryable: true, Message: "network request failed", Cause: cause}
}

// NewValidationError reports a response that arrived but could not be used
func NewValidationError(service, message string) *APIError {
	return &APIError{Service: service, Type: ErrorTypeValidation, Message: message}
}

// ClassifyHTTPStatus maps a non-success status code to an APIError
func ClassifyHTTPStatus(service string, statusCode int) *APIError {
	switch {
	case statusCode == 429:
		return &APIError{Service: service, Type: ErrorTypeRateLimit, Retryable: true, StatusCode: statusCode, Message: "rate limit exceeded"}
	case statusCode == 408:
		return &APIError{Service: service, Type: ErrorTypeTimeout, Retryable: true, StatusCode: statusCode, Message: "request timed out"}
	case statusCode >= 500:
		return &APIError{Service: service, Type: ErrorTypeServer, Retryable: true, StatusCode: statusCode, Message: "server returned an error"}
	case statusCode >= 400:
		return &APIError{Service: service, Type: ErrorTypeClient, StatusCode: statusCode, Message: fmt.Sprintf("client error: HTTP %d", statusCode)}
	default:
		return &APIError{Service: service, Type: ErrorTypeUnknown, StatusCode: statusCode, Message: fmt.Sprintf("unexpected status code: %d", statusCode)}
	}
}

// categorizeAPIError categorizes an error for metrics purposes
func categorizeAPIError(err error) string {
	if err == nil {
		return "none"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Type)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(ErrorTypeTimeout)
	}
	errStr := err.Error()
	switch {
	case contains(errStr, "timeout", "deadline"):
		return string(ErrorTypeTimeout)
	case contains(errStr, "rate limit", "429"):
		return string(ErrorTypeRateLimit)
	case contains(errStr, "unauthorized", "401"):
		return "auth_error"
	case contains(errStr, "circuit breaker"):
		return "circuit_open"
	case contains(errStr, "connection", "network"):
		return "connection_error"
	default:
		return string(ErrorTypeUnknown)
	}
}

// contains checks if the string contains any of the substrings
func contains(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i <= len(s)-len(sub); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}
