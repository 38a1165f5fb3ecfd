package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// DefaultTxTimeout bounds a single per-row transaction.
const DefaultTxTimeout = 30 * time.Second

// WithTx runs fn inside a transaction opened on b. The transaction commits when
// fn returns nil and rolls back otherwise. A zero timeout disables the bound.
func WithTx(ctx context.Context, b TxBeginner, timeout time.Duration, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin tx")
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !eris.Is(rbErr, pgx.ErrTxClosed) {
			return eris.Wrapf(err, "db: rollback failed (%v)", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: commit tx")
	}
	return nil
}
