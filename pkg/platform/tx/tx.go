// Package tx carries a database transaction through the context so stores
// join the caller's unit of work without widening their signatures.
package tx

import (
	"context"
	"database/sql"
	"sync"
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

// DBTX is the subset of *sql.DB and *sql.Tx that stores use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Execer returns the transaction in ctx, falling back to db.
func Execer(ctx context.Context, db *sql.DB) DBTX {
	if t, ok := From(ctx); ok {
		return t
	}
	return db
}

type memoryKey struct{}

// MemoryRunner serialises units of work for in-memory stores. It provides
// isolation only: writes made before fn fails are not undone.
type MemoryRunner struct {
	mu sync.Mutex
}

func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

// RunInTx runs fn under an exclusive lock. Nested calls join the outer unit.
func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryKey{}) == r {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, memoryKey{}, r))
}
