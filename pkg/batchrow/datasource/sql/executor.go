package sql

import (
	"context"
	"database/sql"
)

// Executor captures the operations shared by DB and Tx, so migrations can run against either.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

var (
	_ Executor = (*DB)(nil)
	_ Executor = (*Tx)(nil)
)
