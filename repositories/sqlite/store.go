// Package sqlite stores the cost ledger and route audits in an embedded
// SQLite database for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/repositories"
	"github.com/upb/ai-integration-platform/repositories/sqltx"
)

// timeLayout is fixed width so that TEXT comparison matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store owns the SQLite connection pool
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and applies the schema
func Open(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	logger.Info("sqlite store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS cost_records (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	provider_id     TEXT NOT NULL,
	amount_micros   INTEGER NOT NULL,
	idempotency_key TEXT NOT NULL DEFAULT '',
	request_id      TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_records_user_created ON cost_records(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_cost_records_created_at ON cost_records(created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cost_records_dedup
	ON cost_records(user_id, idempotency_key, provider_id)
	WHERE idempotency_key <> '';

CREATE TABLE IF NOT EXISTS route_audits (
	id            TEXT PRIMARY KEY,
	request_id    TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	capability    TEXT NOT NULL,
	provider_used TEXT NOT NULL DEFAULT '',
	success       INTEGER NOT NULL,
	cost_micros   INTEGER NOT NULL DEFAULT 0,
	deduplicated  INTEGER NOT NULL DEFAULT 0,
	attempts      TEXT NOT NULL DEFAULT '[]',
	error_message TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_route_audits_request_id ON route_audits(request_id);
CREATE INDEX IF NOT EXISTS idx_route_audits_user_created ON route_audits(user_id, created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Repositories returns the repositories backed by this store
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		CostRecords:  &CostRecordRepository{db: s.db, logger: s.logger},
		RouteAudits:  &RouteAuditRepository{db: s.db, logger: s.logger},
		Transactions: sqltx.NewManager(s.db, "sqlite", s.logger),
	}
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// formatTime serialises a time for storage in UTC
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}
