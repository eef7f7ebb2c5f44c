// tx.go provides the shared query handle used by every repository and the helper that
// runs a unit of work inside a single database transaction.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is wrapped when an UPDATE matched no row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is wrapped when a write lost against a uniqueness or state guard.
	ErrConflict = errors.New("conflicting record state")
)

// dbtx is satisfied by both *sqlx.DB and *sqlx.Tx so a repository can be bound to
// either the pool or an open transaction.
type dbtx interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// RunInTx runs fn inside one transaction. The transaction is committed when fn returns
// nil and rolled back otherwise. A failed rollback is logged and never replaces the
// error returned by fn.
func RunInTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "transaction rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// uniqueViolation reports whether err is a Postgres unique_violation and, if so,
// the name of the constraint that fired.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}
