package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/repositories"
	"github.com/upb/ai-integration-platform/repositories/sqltx"
)

// CostRecordRepository implements the repositories.CostRecordRepository interface
type CostRecordRepository struct {
	db     *DB
	tx     repositories.Transaction
	logger *zap.Logger
}

// NewCostRecordRepository creates a new cost record repository
func NewCostRecordRepository(db *DB, logger *zap.Logger) repositories.CostRecordRepository {
	return &CostRecordRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends a cost record. Duplicates of an idempotent record are
// absorbed by the partial unique index and reported as not inserted.
func (r *CostRecordRepository) Insert(ctx context.Context, rec *models.CostRecord) (bool, error) {
	query := `
		INSERT INTO cost_records (
			id, user_id, provider_id, amount_micros, idempotency_key, request_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (user_id, idempotency_key, provider_id) WHERE idempotency_key <> '' DO NOTHING
	`

	executor := sqltx.ExecutorFor(ctx, r.db.DB, r.tx)
	res, err := executor.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.ProviderID,
		rec.Amount.Micros(),
		rec.IdempotencyKey,
		rec.RequestID,
		rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert cost record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		r.logger.Debug("duplicate cost record ignored",
			zap.String("user_id", rec.UserID),
			zap.String("provider_id", rec.ProviderID),
			zap.String("idempotency_key", rec.IdempotencyKey))
		return false, nil
	}

	r.logger.Debug("cost record inserted", zap.String("id", rec.ID.String()), zap.String("user_id", rec.UserID))
	return true, nil
}

// SumBetween totals a user's records with from <= created_at < to
func (r *CostRecordRepository) SumBetween(ctx context.Context, userID string, from, to time.Time) (models.Money, error) {
	query := `
		SELECT COALESCE(SUM(amount_micros), 0)
		FROM cost_records
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
	`

	executor := sqltx.ExecutorFor(ctx, r.db.DB, r.tx)
	var micros int64
	if err := executor.QueryRowContext(ctx, query, userID, from, to).Scan(&micros); err != nil {
		return 0, fmt.Errorf("failed to sum cost records: %w", err)
	}
	return models.Money(micros), nil
}

// ListBetween returns a user's records with from <= created_at < to, oldest first
func (r *CostRecordRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.CostRecord, error) {
	query := `
		SELECT id, user_id, provider_id, amount_micros, idempotency_key, request_id, created_at
		FROM cost_records
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`

	executor := sqltx.ExecutorFor(ctx, r.db.DB, r.tx)
	rows, err := executor.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost records: %w", err)
	}
	defer rows.Close()

	var records []*models.CostRecord
	for rows.Next() {
		rec := &models.CostRecord{}
		var micros int64
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.ProviderID,
			&micros,
			&rec.IdempotencyKey,
			&rec.RequestID,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cost record: %w", err)
		}
		rec.Amount = models.Money(micros)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cost records: %w", err)
	}

	return records, nil
}

// DeleteBefore removes records created before the cutoff
func (r *CostRecordRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM cost_records WHERE created_at < $1`

	executor := sqltx.ExecutorFor(ctx, r.db.DB, r.tx)
	res, err := executor.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cost records: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("cost records purged", zap.Int64("count", rows), zap.Time("before", before))
	return rows, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *CostRecordRepository) WithTx(tx repositories.Transaction) repositories.CostRecordRepository {
	return &CostRecordRepository{
		db:     r.db,
		tx:     tx,
		logger: r.logger,
	}
}
