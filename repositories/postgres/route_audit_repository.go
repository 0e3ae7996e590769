package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/repositories"
	"github.com/upb/ai-integration-platform/repositories/sqltx"
)

// RouteAuditRepository implements the repositories.RouteAuditRepository interface
type RouteAuditRepository struct {
	db     *DB
	tx     repositories.Transaction
	logger *zap.Logger
}

// NewRouteAuditRepository creates a new route audit repository
func NewRouteAuditRepository(db *DB, logger *zap.Logger) repositories.RouteAuditRepository {
	return &RouteAuditRepository{
		db:     db,
		logger: logger,
	}
}

const routeAuditColumns = `id, request_id, user_id, capability, provider_used, success,
		       cost_micros, deduplicated, attempts, error_message, created_at`

// Insert inserts a new route audit
func (r *RouteAuditRepository) Insert(ctx context.Context, audit *models.RouteAudit) error {
	query := `
		INSERT INTO route_audits (
			id, request_id, user_id, capability, provider_used, success,
			cost_micros, deduplicated, attempts, error_message, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	attempts := string(audit.Attempts)
	if attempts == "" {
		attempts = "[]"
	}

	executor := sqltx.ExecutorFor(ctx, r.db.DB, r.tx)
	_, err := executor.ExecContext(ctx, query,
		audit.ID,
		audit.RequestID,
		audit.UserID,
		audit.Capability,
		audit.ProviderUsed,
		audit.Success,
		audit.Cost.Micros(),
		audit.Deduplicated,
		attempts,
		audit.ErrorMessage,
		audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert route audit: %w", err)
	}

	r.logger.Debug("route audit inserted", zap.String("request_id", audit.RequestID))
	return nil
}

// GetByRequestID retrieves the most recent audit of a route call
func (r *RouteAuditRepository) GetByRequestID(ctx context.Context, requestID string) (*models.RouteAudit, error) {
	query := `
		SELECT ` + routeAuditColumns + `
		FROM route_audits
		WHERE request_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	executor := sqltx.ExecutorFor(ctx, r.db.DB, r.tx)
	audit, err := scanRouteAudit(executor.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("route audit %s: %w", requestID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get route audit: %w", err)
	}
	return audit, nil
}

// ListByUser retrieves a user's audits, newest first, with pagination
func (r *RouteAuditRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.RouteAudit, error) {
	query := `
		SELECT ` + routeAuditColumns + `
		FROM route_audits
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	executor := sqltx.ExecutorFor(ctx, r.db.DB, r.tx)
	rows, err := executor.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query route audits: %w", err)
	}
	defer rows.Close()

	var audits []*models.RouteAudit
	for rows.Next() {
		audit, err := scanRouteAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route audit: %w", err)
		}
		audits = append(audits, audit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating route audits: %w", err)
	}

	return audits, nil
}

// DeleteBefore removes audits created before the cutoff
func (r *RouteAuditRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM route_audits WHERE created_at < $1`

	executor := sqltx.ExecutorFor(ctx, r.db.DB, r.tx)
	res, err := executor.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete route audits: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("route audits purged", zap.Int64("count", rows), zap.Time("before", before))
	return rows, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *RouteAuditRepository) WithTx(tx repositories.Transaction) repositories.RouteAuditRepository {
	return &RouteAuditRepository{
		db:     r.db,
		tx:     tx,
		logger: r.logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRouteAudit(row rowScanner) (*models.RouteAudit, error) {
	audit := &models.RouteAudit{}
	var (
		micros   int64
		attempts []byte
	)
	if err := row.Scan(
		&audit.ID,
		&audit.RequestID,
		&audit.UserID,
		&audit.Capability,
		&audit.ProviderUsed,
		&audit.Success,
		&micros,
		&audit.Deduplicated,
		&attempts,
		&audit.ErrorMessage,
		&audit.CreatedAt,
	); err != nil {
		return nil, err
	}
	audit.Cost = models.Money(micros)
	audit.Attempts = attempts
	return audit, nil
}
