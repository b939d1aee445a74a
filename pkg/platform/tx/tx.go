// Package tx carries an open SQL transaction through context so store
// methods can join a caller's transaction without changing their
// signatures.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

// WithTx stores a SQL transaction in context for downstream store calls.
// A nil transaction leaves the context unchanged.
func WithTx(ctx context.Context, txn *sql.Tx) context.Context {
	if txn == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, txn)
}

// From extracts the SQL transaction from context, if one is active.
func From(ctx context.Context) (*sql.Tx, bool) {
	txn, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return txn, ok
}
