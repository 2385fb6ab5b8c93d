// Package dbx holds the database plumbing shared by repositories: the
// handle interface satisfied by both *sql.DB and *sql.Tx, a transaction
// helper, and the per-driver dialect.
package dbx

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jeremy-quicklearner/clautod/internal/common"
)

// DBTX is the subset of database/sql the repositories use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside one transaction. fn's error is returned as is and
// rolls the transaction back; a panic rolls back and is rethrown. Failing to
// begin or commit means the store itself is in trouble and is reported as
// common.ErrStorageUnavailable.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE users SET ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", common.ErrStorageUnavailable, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("%w: commit: %v", common.ErrStorageUnavailable, cerr)
		}
	}()

	return fn(ctx, tx)
}
