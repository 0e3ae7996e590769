package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/repositories"
	"github.com/upb/ai-integration-platform/repositories/sqltx"
)

// Compile-time interface checks.
var (
	_ repositories.CostRecordRepository = (*CostRecordRepository)(nil)
	_ repositories.RouteAuditRepository = (*RouteAuditRepository)(nil)
	_ repositories.TransactionManager   = (*sqltx.Manager)(nil)
)

// CostRecordRepository implements repositories.CostRecordRepository backed by SQLite.
type CostRecordRepository struct {
	db     *sql.DB
	tx     repositories.Transaction
	logger *zap.Logger
}

func (r *CostRecordRepository) Insert(ctx context.Context, rec *models.CostRecord) (bool, error) {
	const q = `INSERT INTO cost_records (id, user_id, provider_id, amount_micros, idempotency_key, request_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, idempotency_key, provider_id) WHERE idempotency_key <> '' DO NOTHING`

	res, err := sqltx.ExecutorFor(ctx, r.db, r.tx).ExecContext(ctx, q,
		rec.ID.String(),
		rec.UserID,
		rec.ProviderID,
		rec.Amount.Micros(),
		rec.IdempotencyKey,
		rec.RequestID,
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting cost record %s: %w", rec.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		r.logger.Debug("duplicate cost record ignored",
			zap.String("user_id", rec.UserID),
			zap.String("provider_id", rec.ProviderID),
			zap.String("idempotency_key", rec.IdempotencyKey))
	}
	return n > 0, nil
}

func (r *CostRecordRepository) SumBetween(ctx context.Context, userID string, from, to time.Time) (models.Money, error) {
	const q = `SELECT COALESCE(SUM(amount_micros), 0) FROM cost_records
WHERE user_id = ? AND created_at >= ? AND created_at < ?`

	var micros int64
	err := sqltx.ExecutorFor(ctx, r.db, r.tx).QueryRowContext(ctx, q, userID, formatTime(from), formatTime(to)).Scan(&micros)
	if err != nil {
		return 0, fmt.Errorf("summing cost records for %s: %w", userID, err)
	}
	return models.Money(micros), nil
}

func (r *CostRecordRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.CostRecord, error) {
	const q = `SELECT id, user_id, provider_id, amount_micros, idempotency_key, request_id, created_at
FROM cost_records WHERE user_id = ? AND created_at >= ? AND created_at < ?
ORDER BY created_at ASC`

	rows, err := sqltx.ExecutorFor(ctx, r.db, r.tx).QueryContext(ctx, q, userID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("listing cost records for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*models.CostRecord
	for rows.Next() {
		var (
			rec           models.CostRecord
			id, createdAt string
			micros        int64
		)
		if err := rows.Scan(&id, &rec.UserID, &rec.ProviderID, &micros, &rec.IdempotencyKey, &rec.RequestID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning cost record: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing cost record id %q: %w", id, err)
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		rec.Amount = models.Money(micros)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *CostRecordRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := sqltx.ExecutorFor(ctx, r.db, r.tx).ExecContext(ctx, `DELETE FROM cost_records WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("deleting cost records: %w", err)
	}
	return res.RowsAffected()
}

func (r *CostRecordRepository) WithTx(tx repositories.Transaction) repositories.CostRecordRepository {
	return &CostRecordRepository{db: r.db, tx: tx, logger: r.logger}
}

// RouteAuditRepository implements repositories.RouteAuditRepository backed by SQLite.
type RouteAuditRepository struct {
	db     *sql.DB
	tx     repositories.Transaction
	logger *zap.Logger
}

func (r *RouteAuditRepository) Insert(ctx context.Context, audit *models.RouteAudit) error {
	const q = `INSERT INTO route_audits (id, request_id, user_id, capability, provider_used, success,
cost_micros, deduplicated, attempts, error_message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	attempts := string(audit.Attempts)
	if attempts == "" {
		attempts = "[]"
	}

	_, err := sqltx.ExecutorFor(ctx, r.db, r.tx).ExecContext(ctx, q,
		audit.ID.String(),
		audit.RequestID,
		audit.UserID,
		audit.Capability,
		audit.ProviderUsed,
		audit.Success,
		audit.Cost.Micros(),
		audit.Deduplicated,
		attempts,
		audit.ErrorMessage,
		formatTime(audit.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting route audit %s: %w", audit.RequestID, err)
	}
	return nil
}

const selectRouteAudit = `SELECT id, request_id, user_id, capability, provider_used, success,
cost_micros, deduplicated, attempts, error_message, created_at FROM route_audits`

func (r *RouteAuditRepository) GetByRequestID(ctx context.Context, requestID string) (*models.RouteAudit, error) {
	row := sqltx.ExecutorFor(ctx, r.db, r.tx).QueryRowContext(ctx,
		selectRouteAudit+` WHERE request_id = ? ORDER BY created_at DESC LIMIT 1`, requestID)
	audit, err := scanRouteAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route audit %s: %w", requestID, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting route audit %s: %w", requestID, err)
	}
	return audit, nil
}

func (r *RouteAuditRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.RouteAudit, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := sqltx.ExecutorFor(ctx, r.db, r.tx).QueryContext(ctx,
		selectRouteAudit+` WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing route audits for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*models.RouteAudit
	for rows.Next() {
		audit, err := scanRouteAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning route audit: %w", err)
		}
		out = append(out, audit)
	}
	return out, rows.Err()
}

func (r *RouteAuditRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := sqltx.ExecutorFor(ctx, r.db, r.tx).ExecContext(ctx, `DELETE FROM route_audits WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("deleting route audits: %w", err)
	}
	return res.RowsAffected()
}

func (r *RouteAuditRepository) WithTx(tx repositories.Transaction) repositories.RouteAuditRepository {
	return &RouteAuditRepository{db: r.db, tx: tx, logger: r.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRouteAudit(row rowScanner) (*models.RouteAudit, error) {
	var (
		audit                   models.RouteAudit
		id, attempts, createdAt string
		micros                  int64
		errMsg                  sql.NullString
	)
	if err := row.Scan(&id, &audit.RequestID, &audit.UserID, &audit.Capability, &audit.ProviderUsed,
		&audit.Success, &micros, &audit.Deduplicated, &attempts, &errMsg, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if audit.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing route audit id %q: %w", id, err)
	}
	if audit.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	audit.Cost = models.Money(micros)
	audit.Attempts = []byte(attempts)
	if errMsg.Valid {
		audit.ErrorMessage = &errMsg.String
	}
	return &audit, nil
}
