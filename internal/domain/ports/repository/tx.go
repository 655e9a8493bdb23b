package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes fn inside one database transaction and passes the
// transaction handle to it as tx. Repositories accept that handle (or NoTX for
// the pool) so a use case can group several writes without seeing pgx types.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		if err := payments.Insert(ctx, tx, p); err != nil {
//			return err
//		}
//		return subs.Save(ctx, tx, s)
//	})
//
// Returning an error from fn rolls back; otherwise the transaction commits.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
