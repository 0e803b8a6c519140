package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// TransactionManager executes fn within a database transaction, passing the
// underlying handle as tx. The concrete type is infra-defined (pgx.Tx for
// Postgres) and repositories must also accept a nil tx.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		s, err := sessions.lockRow(ctx, tx, chatID)
//		...
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
