package models

import (
	"time"

	"github.com/google/uuid"
)

// CostRecord is one append-only charge against a user for a provider attempt.
type CostRecord struct {
	ID             uuid.UUID `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	ProviderID     string    `json:"provider_id" db:"provider_id"`
	Amount         Money     `json:"amount" db:"amount_micros"`
	IdempotencyKey string    `json:"idempotency_key,omitempty" db:"idempotency_key"`
	RequestID      string    `json:"request_id,omitempty" db:"request_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the CostRecord model
func (CostRecord) TableName() string {
	return "cost_records"
}

// NewCostRecord creates a new CostRecord stamped with the given time
func NewCostRecord(userID, providerID string, amount Money, at time.Time) *CostRecord {
	return &CostRecord{
		ID:         uuid.New(),
		UserID:     userID,
		ProviderID: providerID,
		Amount:     amount,
		CreatedAt:  at,
	}
}

// WithIdempotency attaches the idempotency key and request id of the route call
func (c *CostRecord) WithIdempotency(key, requestID string) *CostRecord {
	c.IdempotencyKey = key
	c.RequestID = requestID
	return c
}
