// Package db provides shared database handles and helpers for transactional
// upserts against PostgreSQL.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by pools and transactions. Repositories
// take a Querier so the caller decides the transactional scope.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts a transaction. A pgx.Tx also satisfies it, in which case
// Begin opens a savepoint.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type Pool interface {
	Querier
	TxBeginner
	Ping(ctx context.Context) error
	Close()
}
