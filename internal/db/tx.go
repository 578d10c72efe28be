package db

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// WithTx runs fn inside a transaction. The transaction is rolled back when
// fn returns an error or panics, and committed otherwise. Every read-modify-
// write path in the store goes through this helper; nothing hand-rolls
// begin/commit/rollback.
func WithTx(ctx context.Context, db *DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return errors.Wrapf(err, "rollback also failed: %v", rbErr)
		}
		return err
	}

	return errors.Wrap(tx.Commit(), "commit transaction")
}

// WithTxNoContext runs fn in a transaction without cancellation, for
// housekeeping callers that have no request context.
func WithTxNoContext(db *DB, fn func(tx *sql.Tx) error) error {
	return WithTx(context.Background(), db, fn)
}
