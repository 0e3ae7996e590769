package services

import (
	"errors"
	"fmt"

	"github.com/upb/ai-integration-platform/models"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeBudget       ErrorType = "budget"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeProviderAuth ErrorType = "provider_auth"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error. Call it on errors built by the
// constructors below, never on the package-level sentinels.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is comparisons. Is matches on Type only.
var (
	ErrNotFound       = NewDomainError(ErrorTypeNotFound, "not found", nil)
	ErrInvalidInput   = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrUnauthorized   = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrBudgetExceeded = NewDomainError(ErrorTypeBudget, "daily budget exceeded", nil)
	ErrInternal       = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrProviderAuth   = NewDomainError(ErrorTypeProviderAuth, "provider rejected credentials", nil)
)

// Constructors for errors that carry request-specific details

// NewValidationError reports a request the caller must fix
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// NewUnknownCapabilityError reports a capability outside the closed set
func NewUnknownCapabilityError(capability string) *DomainError {
	return NewDomainError(ErrorTypeValidation, "unknown capability", nil).
		WithDetail("capability", capability)
}

// NewBudgetExceededError reports that the cheapest candidate would overrun the user's daily budget
func NewBudgetExceededError(userID string, spent, proposed, budget models.Money) *DomainError {
	return NewDomainError(ErrorTypeBudget, "daily budget exceeded", nil).
		WithDetail("user_id", userID).
		WithDetail("spent", spent.String()).
		WithDetail("proposed", proposed.String()).
		WithDetail("daily_budget", budget.String())
}

// NewProviderAuthError reports that a provider rejected the platform's credentials
func NewProviderAuthError(providerID string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProviderAuth, "provider rejected credentials", cause).
		WithDetail("provider_id", providerID)
}

// NewAllProvidersExhaustedError reports a chain that ended without the local fallback
func NewAllProvidersExhaustedError(capability string) *DomainError {
	return NewDomainError(ErrorTypeInternal, "all providers exhausted", nil).
		WithDetail("capability", capability)
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsBudgetError checks if an error is a budget error
func IsBudgetError(err error) bool {
	return GetErrorType(err) == ErrorTypeBudget
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsProviderAuthError checks if an error is a provider credential rejection
func IsProviderAuthError(err error) bool {
	return GetErrorType(err) == ErrorTypeProviderAuth
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
