package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/upb/ai-integration-platform/models"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrUnsupportedCapability is returned by adapters asked for work they cannot do
	ErrUnsupportedCapability = errors.New("capability not supported by adapter")
)

// ProviderError represents a classified failure from a vendor call
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Kind places the failure in the routing taxonomy
	Kind models.AttemptOutcome

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cost already incurred at the vendor despite the failure
	Cost models.Money

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, e.Message)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Transient reports whether trying another provider may succeed
func (e *ProviderError) Transient() bool {
	return e.Kind.IsFailure()
}

// NewProviderError creates a new provider error
func NewProviderError(provider string, kind models.AttemptOutcome, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// KindFromStatus maps an HTTP status code onto the routing taxonomy.
// Rejections of the request itself (400, 404, 422) are invalid_request and
// say nothing about provider health. Other unexpected 4xx responses are
// treated as server errors so the chain moves on.
func KindFromStatus(status int) models.AttemptOutcome {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return models.OutcomeAuthError
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity:
		return models.OutcomeInvalidRequest
	case status == http.StatusTooManyRequests:
		return models.OutcomeRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return models.OutcomeTimeout
	default:
		return models.OutcomeServerError
	}
}

// FromStatus builds a ProviderError from an HTTP status code
func FromStatus(provider string, status int, message string, cause error) *ProviderError {
	return NewProviderError(provider, KindFromStatus(status), message, status, cause)
}

// Classify returns the routing outcome of an adapter error.
// A nil error is a success. Errors not produced by an adapter default to server_error.
func Classify(err error) models.AttemptOutcome {
	if err == nil {
		return models.OutcomeSuccess
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind
	}

	if errors.Is(err, context.Canceled) {
		return models.OutcomeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.OutcomeTimeout
	}

	return models.OutcomeServerError
}

// IncurredCost returns the vendor-side cost carried by a failed call, if any
func IncurredCost(err error) models.Money {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Cost
	}
	return 0
}

// WrapTransport classifies a transport-level error (no HTTP response) from a vendor client
func WrapTransport(provider string, err error) *ProviderError {
	kind := Classify(err)
	if kind == models.OutcomeSuccess {
		kind = models.OutcomeServerError
	}
	return NewProviderError(provider, kind, "request failed", 0, err)
}
