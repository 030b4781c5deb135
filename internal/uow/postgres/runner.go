package postgres

import (
	"context"
	"database/sql"
	"errors"
)

type contextKey string

const contextKeyTx contextKey = "uow.tx"

// Runner wraps units of work in a database transaction. The open *sql.Tx is
// carried in the context so repositories inside the unit of work write
// through it instead of the pool.
type Runner struct {
	db *sql.DB
}

// NewRunner constructs a runner.
func NewRunner(db *sql.DB) (*Runner, error) {
	if db == nil {
		return nil, errors.New("uow runner: nil db")
	}
	return &Runner{db: db}, nil
}

// RunInTx begins a transaction, runs fn, and commits or rolls back.
func (r *Runner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if TxFromContext(ctx) != nil {
		// Already inside a unit of work; join it.
		return fn(ctx)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// WithTx attaches a transaction to the context.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, contextKeyTx, tx)
}

// TxFromContext returns the transaction carried by the context, if any.
func TxFromContext(ctx context.Context) *sql.Tx {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(contextKeyTx).(*sql.Tx)
	return tx
}

// Querier is the subset of *sql.DB / *sql.Tx used by repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// QuerierFor returns the context transaction when present, else db.
func QuerierFor(ctx context.Context, db *sql.DB) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}
