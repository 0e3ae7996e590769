package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptOutcome is the recorded outcome of one candidate in a fallback chain
type AttemptOutcome string

const (
	OutcomeSuccess        AttemptOutcome = "success"
	OutcomeRateLimited    AttemptOutcome = "rate_limited"
	OutcomeAuthError      AttemptOutcome = "auth_error"
	OutcomeInvalidRequest AttemptOutcome = "invalid_request"
	OutcomeTimeout        AttemptOutcome = "timeout"
	OutcomeServerError    AttemptOutcome = "server_error"
	OutcomeCancelled      AttemptOutcome = "cancelled"
	OutcomeSkipped        AttemptOutcome = "skipped"
)

// IsFailure reports whether the outcome counts against provider health
func (o AttemptOutcome) IsFailure() bool {
	switch o {
	case OutcomeRateLimited, OutcomeTimeout, OutcomeServerError:
		return true
	}
	return false
}

// AttemptRecord is one entry of a route's attempt trail
type AttemptRecord struct {
	Provider  string         `json:"provider"`
	Outcome   AttemptOutcome `json:"outcome"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// RouteAudit is the persisted summary of one route call
type RouteAudit struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	RequestID    string          `json:"request_id" db:"request_id"`
	UserID       string          `json:"user_id" db:"user_id"`
	Capability   string          `json:"capability" db:"capability"`
	ProviderUsed string          `json:"provider_used" db:"provider_used"`
	Success      bool            `json:"success" db:"success"`
	Cost         Money           `json:"cost" db:"cost_micros"`
	Deduplicated bool            `json:"deduplicated" db:"deduplicated"`
	Attempts     json.RawMessage `json:"attempts" db:"attempts"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RouteAudit model
func (RouteAudit) TableName() string {
	return "route_audits"
}

// NewRouteAudit creates a new RouteAudit instance
func NewRouteAudit(requestID, userID, capability string) *RouteAudit {
	return &RouteAudit{
		ID:         uuid.New(),
		RequestID:  requestID,
		UserID:     userID,
		Capability: capability,
		Attempts:   json.RawMessage("[]"),
		CreatedAt:  time.Now(),
	}
}

// WithResult sets the outcome of the route
func (a *RouteAudit) WithResult(providerUsed string, success bool, cost Money) *RouteAudit {
	a.ProviderUsed = providerUsed
	a.Success = success
	a.Cost = cost
	return a
}

// WithAttempts sets the attempt trail
func (a *RouteAudit) WithAttempts(attempts []AttemptRecord) *RouteAudit {
	if data, err := json.Marshal(attempts); err == nil {
		a.Attempts = data
	}
	return a
}

// WithError sets the error message of a failed route
func (a *RouteAudit) WithError(message string) *RouteAudit {
	a.ErrorMessage = &message
	return a
}
