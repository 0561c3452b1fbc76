package postgres

import (
	"context"
	"database/sql"
	"time"

	dErrors "sovren/pkg/domain-errors"
	txcontext "sovren/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// UnitOfWork runs a callback inside one database transaction. Stores called
// with the callback's context join the transaction via pkg/platform/tx.
type UnitOfWork struct {
	db      *sql.DB
	timeout time.Duration
}

func NewUnitOfWork(db *sql.DB) *UnitOfWork {
	return &UnitOfWork{db: db, timeout: defaultTxTimeout}
}

func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, nested := txcontext.From(ctx); nested {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	txCtx, runHooks := txcontext.WithCommitHooks(txcontext.WithTx(ctx, tx))
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	runHooks()
	return nil
}
