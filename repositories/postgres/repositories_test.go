package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/repositories"
	"github.com/upb/ai-integration-platform/repositories/sqltx"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return WrapDB(sqlDB, zap.NewNop()), mock
}

func TestCostRecordRepository_Insert(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		want         bool
	}{
		{"new record", 1, true},
		{"duplicate idempotency key", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewCostRecordRepository(db, zap.NewNop())
			rec := models.NewCostRecord("alice", "openai", models.Dollars(0.04), day).WithIdempotency("key-1", "req-1")

			mock.ExpectExec("INSERT INTO cost_records").
				WithArgs(rec.ID, "alice", "openai", int64(40_000), "key-1", "req-1", day).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			got, err := repo.Insert(context.Background(), rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCostRecordRepository_InsertError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCostRecordRepository(db, zap.NewNop())

	mock.ExpectExec("INSERT INTO cost_records").WillReturnError(errors.New("connection reset"))

	_, err := repo.Insert(context.Background(), models.NewCostRecord("alice", "openai", 1, day))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert cost record")
}

func TestCostRecordRepository_SumBetween(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCostRecordRepository(db, zap.NewNop())
	to := day.AddDate(0, 0, 1)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount_micros\\), 0\\)").
		WithArgs("alice", day, to).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(120_000)))

	sum, err := repo.SumBetween(context.Background(), "alice", day, to)
	require.NoError(t, err)
	assert.Equal(t, models.Dollars(0.12), sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRecordRepository_ListBetween(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCostRecordRepository(db, zap.NewNop())
	to := day.AddDate(0, 0, 1)
	id1, id2 := uuid.New(), uuid.New()

	rows := sqlmock.NewRows([]string{"id", "user_id", "provider_id", "amount_micros", "idempotency_key", "request_id", "created_at"}).
		AddRow(id1.String(), "alice", "openai", int64(40_000), "", "req-1", day.Add(time.Hour)).
		AddRow(id2.String(), "alice", "anthropic", int64(80_000), "key-2", "req-2", day.Add(2*time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM cost_records").WithArgs("alice", day, to).WillReturnRows(rows)

	records, err := repo.ListBetween(context.Background(), "alice", day, to)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, id1, records[0].ID)
	assert.Equal(t, models.Dollars(0.04), records[0].Amount)
	assert.Equal(t, "key-2", records[1].IdempotencyKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRecordRepository_DeleteBeforeInTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCostRecordRepository(db, zap.NewNop())
	audits := NewRouteAuditRepository(db, zap.NewNop())
	tm := sqltx.NewManager(db.DB, "postgres", zap.NewNop())
	cutoff := day.AddDate(0, 0, -90)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM cost_records").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM route_audits").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	var records, routes int64
	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		var err error
		if records, err = repo.WithTx(tx).DeleteBefore(ctx, cutoff); err != nil {
			return err
		}
		routes, err = audits.WithTx(tx).DeleteBefore(ctx, cutoff)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), records)
	assert.Equal(t, int64(2), routes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRecordRepository_DeleteBeforeRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCostRecordRepository(db, zap.NewNop())
	tm := sqltx.NewManager(db.DB, "postgres", zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM cost_records").WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		_, err := repo.WithTx(tx).DeleteBefore(ctx, day)
		return err
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteAuditRepository_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRouteAuditRepository(db, zap.NewNop())

	audit := models.NewRouteAudit("req-1", "alice", "text-generation").
		WithResult("openai", true, models.Dollars(0.04)).
		WithAttempts([]models.AttemptRecord{{Provider: "openai", Outcome: models.OutcomeSuccess, LatencyMs: 120}})

	mock.ExpectExec("INSERT INTO route_audits").
		WithArgs(audit.ID, "req-1", "alice", "text-generation", "openai", true,
			int64(40_000), false, string(audit.Attempts), sqlmock.AnyArg(), audit.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), audit))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteAuditRepository_GetByRequestID(t *testing.T) {
	columns := []string{"id", "request_id", "user_id", "capability", "provider_used", "success",
		"cost_micros", "deduplicated", "attempts", "error_message", "created_at"}

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRouteAuditRepository(db, zap.NewNop())
		id := uuid.New()

		mock.ExpectQuery("SELECT (.+) FROM route_audits").WithArgs("req-1").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(
				id.String(), "req-1", "alice", "vision", "local_fallback", true,
				int64(0), true, []byte(`[{"provider":"local_fallback","outcome":"success"}]`), nil, day))

		audit, err := repo.GetByRequestID(context.Background(), "req-1")
		require.NoError(t, err)
		assert.Equal(t, id, audit.ID)
		assert.Equal(t, "local_fallback", audit.ProviderUsed)
		assert.True(t, audit.Deduplicated)
		assert.Nil(t, audit.ErrorMessage)
		assert.JSONEq(t, `[{"provider":"local_fallback","outcome":"success"}]`, string(audit.Attempts))
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRouteAuditRepository(db, zap.NewNop())

		mock.ExpectQuery("SELECT (.+) FROM route_audits").WithArgs("missing").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByRequestID(context.Background(), "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("list by user", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewRouteAuditRepository(db, zap.NewNop())
		msg := "budget exceeded"

		mock.ExpectQuery("SELECT (.+) FROM route_audits").WithArgs("alice", 10, 0).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(uuid.NewString(), "req-2", "alice", "text-generation", "", false, int64(0), false, []byte(`[]`), msg, day.Add(time.Hour)).
				AddRow(uuid.NewString(), "req-1", "alice", "text-generation", "openai", true, int64(40_000), false, []byte(`[]`), nil, day))

		audits, err := repo.ListByUser(context.Background(), "alice", 10, 0)
		require.NoError(t, err)
		require.Len(t, audits, 2)
		require.NotNil(t, audits[0].ErrorMessage)
		assert.Equal(t, msg, *audits[0].ErrorMessage)
		assert.Equal(t, models.Dollars(0.04), audits[1].Cost)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDB_HealthCheck(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := WrapDB(sqlDB, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, db.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, db.HealthCheck(context.Background()))
}

func TestDB_InitSchema(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cost_records").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, db.InitSchema(context.Background(), true))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS route_audits").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, db.InitAuditSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
