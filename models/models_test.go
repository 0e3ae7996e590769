package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    Money
		wantErr bool
	}{
		{"0.04", 40_000, false},
		{"$0.08", 80_000, false},
		{"12", 12_000_000, false},
		{".5", 500_000, false},
		{"-1.25", -1_250_000, false},
		{"0.1234567", 123_456, false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "0.04", Money(40_000).String())
	assert.Equal(t, "3", Money(3_000_000).String())
	assert.Equal(t, "-0.000001", Money(-1).String())
	assert.Equal(t, "0", Money(0).String())
}

func TestMoney_SumIsExact(t *testing.T) {
	var total Money
	for i := 0; i < 10; i++ {
		total += Dollars(0.1)
	}
	assert.Equal(t, Dollars(1), total)
}

func TestMoney_JSON(t *testing.T) {
	var body struct {
		MaxCost Money `json:"max_cost"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"max_cost": 0.05}`), &body))
	assert.Equal(t, Money(50_000), body.MaxCost)

	data, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_cost": 0.05}`, string(data))
}

func TestNewCostRecord(t *testing.T) {
	rec := NewCostRecord("user-1", "openai", Dollars(0.04), fixedTime).WithIdempotency("key-1", "req-1")

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "openai", rec.ProviderID)
	assert.Equal(t, Money(40_000), rec.Amount)
	assert.Equal(t, "key-1", rec.IdempotencyKey)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, fixedTime, rec.CreatedAt)
	assert.Equal(t, "cost_records", rec.TableName())
}

func TestRouteAudit_WithAttempts(t *testing.T) {
	audit := NewRouteAudit("req-1", "user-1", "text-generation").
		WithResult("local_fallback", true, 0).
		WithAttempts([]AttemptRecord{
			{Provider: "openai", Outcome: OutcomeTimeout, LatencyMs: 15000},
			{Provider: "local_fallback", Outcome: OutcomeSuccess},
		})

	var attempts []AttemptRecord
	require.NoError(t, json.Unmarshal(audit.Attempts, &attempts))
	require.Len(t, attempts, 2)
	assert.Equal(t, OutcomeTimeout, attempts[0].Outcome)
	assert.Equal(t, "route_audits", audit.TableName())
	assert.Nil(t, audit.ErrorMessage)
}

func TestAttemptOutcome_IsFailure(t *testing.T) {
	assert.True(t, OutcomeTimeout.IsFailure())
	assert.True(t, OutcomeRateLimited.IsFailure())
	assert.True(t, OutcomeServerError.IsFailure())
	assert.False(t, OutcomeAuthError.IsFailure())
	assert.False(t, OutcomeInvalidRequest.IsFailure())
	assert.False(t, OutcomeSkipped.IsFailure())
	assert.False(t, OutcomeSuccess.IsFailure())
}
