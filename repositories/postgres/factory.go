package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/config"
	"github.com/upb/ai-integration-platform/repositories"
	"github.com/upb/ai-integration-platform/repositories/sqltx"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db      *DB
	auditDB *DB // Optional: separate DB for route audits
	logger  *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	f := &RepositoryFactory{db: db, logger: logger}

	if cfg.AuditDatabase != nil {
		auditDB, err := NewDB(*cfg.AuditDatabase, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		f.auditDB = auditDB
	}

	return f, nil
}

// InitSchema creates the ledger and route audit tables in their databases
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	if err := f.db.InitSchema(ctx, f.auditDB == nil); err != nil {
		return err
	}
	if f.auditDB != nil {
		return f.auditDB.InitAuditSchema(ctx)
	}
	return nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	auditDB := f.db
	if f.auditDB != nil {
		auditDB = f.auditDB
	}
	return &repositories.Repositories{
		CostRecords:  NewCostRecordRepository(f.db, f.logger),
		RouteAudits:  NewRouteAuditRepository(auditDB, f.logger),
		Transactions: sqltx.NewManager(f.db.DB, "postgres", f.logger),
	}
}

// HealthCheck pings every database the factory owns
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if err := f.db.HealthCheck(ctx); err != nil {
		return err
	}
	if f.auditDB != nil {
		return f.auditDB.HealthCheck(ctx)
	}
	return nil
}

// Close closes the database connection(s)
func (f *RepositoryFactory) Close() error {
	if f.auditDB != nil {
		_ = f.auditDB.Close()
	}
	return f.db.Close()
}
