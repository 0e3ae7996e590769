package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/ai-integration-platform/repositories"
)

// InTx runs fn in a transaction from txMgr and returns its value. The
// transaction commits when fn succeeds and rolls back when fn fails or
// panics. Stores without transactions pass a nil txMgr: fn then runs with a
// nil transaction, which every repository's WithTx accepts.
func InTx[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (result T, err error) {
	if txMgr == nil {
		return fn(ctx, nil)
	}

	tx, err := txMgr.Begin(ctx)
	if err != nil {
		return result, err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && err != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	result, err = fn(ctx, tx)
	if err != nil {
		return result, err
	}
	if err = tx.Commit(); err != nil {
		return result, err
	}
	committed = true
	return result, nil
}
