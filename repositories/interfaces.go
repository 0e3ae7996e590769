package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/upb/ai-integration-platform/models"
)

// ErrNotFound is wrapped by lookups that match no row
var ErrNotFound = errors.New("not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// CostRecordRepository stores the append-only cost ledger
type CostRecordRepository interface {
	// Insert appends a record. It reports false without error when a record
	// with the same (user, idempotency key, provider) already exists.
	Insert(ctx context.Context, record *models.CostRecord) (bool, error)

	// SumBetween totals a user's records with from <= created_at < to
	SumBetween(ctx context.Context, userID string, from, to time.Time) (models.Money, error)

	// ListBetween returns a user's records with from <= created_at < to, oldest first
	ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.CostRecord, error)

	// DeleteBefore removes records created before the cutoff and returns how many
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) CostRecordRepository
}

// RouteAuditRepository stores one summary row per route call
type RouteAuditRepository interface {
	// Insert inserts a new route audit
	Insert(ctx context.Context, audit *models.RouteAudit) error

	// GetByRequestID retrieves the audit of a route call
	GetByRequestID(ctx context.Context, requestID string) (*models.RouteAudit, error)

	// ListByUser retrieves a user's audits, newest first, with pagination
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.RouteAudit, error)

	// DeleteBefore removes audits created before the cutoff and returns how many
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) RouteAuditRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	CostRecords CostRecordRepository
	RouteAudits RouteAuditRepository

	// Transactions is nil for stores without transactions
	Transactions TransactionManager
}
