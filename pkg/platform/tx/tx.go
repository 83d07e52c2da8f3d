package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "crm/pkg/domain-errors"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Transactor runs fn inside one atomic unit of work. Stores called with the
// ctx passed to fn join that unit.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DefaultTimeout bounds a transaction whose context carries no deadline.
const DefaultTimeout = 5 * time.Second

// PostgresTx is a Transactor backed by database/sql.
type PostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgres builds a SQL transactor. A zero timeout uses DefaultTimeout.
func NewPostgres(db *sql.DB, timeout time.Duration) *PostgresTx {
	return &PostgresTx{db: db, timeout: timeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	// Nested calls join the outer transaction.
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "failed to begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "failed to commit transaction")
	}
	return nil
}
