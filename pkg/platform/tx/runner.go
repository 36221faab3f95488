package tx

import (
	"context"
	"database/sql"
)

// Runner executes a function atomically. Services depend on this interface so
// the same transition pipeline runs against Postgres (one ACID transaction)
// and the in-memory stores (no transaction to manage).
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner wraps a *sql.DB into a Runner using RunInTx.
type SQLRunner struct {
	DB *sql.DB
}

func (r SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTx(ctx, r.DB, fn)
}

// NopRunner runs the function directly. In-memory stores serialize with their
// own locks, so there is no transaction to coordinate.
type NopRunner struct{}

func (NopRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
