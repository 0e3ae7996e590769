// Package sqltx implements repositories.TransactionManager over database/sql.
// The postgres and sqlite stores share it.
package sqltx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/repositories"
)

type txKey struct{}

// Manager begins transactions on one connection pool
type Manager struct {
	db     *sql.DB
	store  string
	logger *zap.Logger
}

// NewManager returns a manager for db. store names the backend in errors and logs.
func NewManager(db *sql.DB, store string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{db: db, store: store, logger: logger.With(zap.String("store", store))}
}

// Begin starts a transaction. The caller must Commit or Rollback it.
func (m *Manager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning %s transaction: %w", m.store, err)
	}
	return &Tx{tx: sqlTx, ctx: ctx, store: m.store}, nil
}

// InTransaction runs fn inside a transaction and commits when fn returns nil.
// The transaction is also placed on the context handed to fn, so repositories
// that were not bound with WithTx still join it.
func (m *Manager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err))
		}
		return err
	}
	return tx.Commit()
}

// Tx is a database/sql transaction
type Tx struct {
	tx    *sql.Tx
	ctx   context.Context
	store string
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing %s transaction: %w", t.store, err)
	}
	return nil
}

// Rollback rolls back the transaction. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back %s transaction: %w", t.store, err)
	}
	return nil
}

// Context returns the context the transaction was started with
func (t *Tx) Context() context.Context {
	return t.ctx
}

// Executor runs statements on a pool or inside a transaction
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecutorFor picks where a repository statement runs: the transaction bound
// with WithTx, then one carried by ctx, then the pool.
func ExecutorFor(ctx context.Context, db *sql.DB, bound repositories.Transaction) Executor {
	if tx, ok := bound.(*Tx); ok && tx != nil {
		return tx.tx
	}
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok {
		return tx.tx
	}
	return db
}
