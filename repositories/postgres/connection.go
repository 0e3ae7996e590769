package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// WrapDB wraps an existing connection pool, e.g. one opened by sqlmock
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

const costRecordSchema = `
	CREATE TABLE IF NOT EXISTS cost_records (
		id UUID PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		provider_id VARCHAR(100) NOT NULL,
		amount_micros BIGINT NOT NULL,
		idempotency_key VARCHAR(255) NOT NULL DEFAULT '',
		request_id VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cost_records_user_created ON cost_records(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_cost_records_created_at ON cost_records(created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_cost_records_dedup
		ON cost_records(user_id, idempotency_key, provider_id)
		WHERE idempotency_key <> '';
`

const routeAuditSchema = `
	CREATE TABLE IF NOT EXISTS route_audits (
		id UUID PRIMARY KEY,
		request_id VARCHAR(255) NOT NULL,
		user_id VARCHAR(255) NOT NULL,
		capability VARCHAR(50) NOT NULL,
		provider_used VARCHAR(100) NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		cost_micros BIGINT NOT NULL DEFAULT 0,
		deduplicated BOOLEAN NOT NULL DEFAULT false,
		attempts JSONB NOT NULL DEFAULT '[]',
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_route_audits_request_id ON route_audits(request_id);
	CREATE INDEX IF NOT EXISTS idx_route_audits_user_created ON route_audits(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_route_audits_created_at ON route_audits(created_at);
`

// InitSchema initializes the ledger schema, plus the route audit schema
// unless audits live in a separate database
func (db *DB) InitSchema(ctx context.Context, withAudits bool) error {
	schema := costRecordSchema
	if withAudits {
		schema += routeAuditSchema
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully", zap.Bool("route_audits", withAudits))
	return nil
}

// InitAuditSchema initializes the route audit schema only.
// Use for the separate audit database when DATABASE_URL_AUDIT is set.
func (db *DB) InitAuditSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, routeAuditSchema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	db.logger.Info("audit schema initialized successfully")
	return nil
}
