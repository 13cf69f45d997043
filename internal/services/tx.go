package services

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/lib/pq"
	"github.com/ruralpay/collections/internal/models"
)

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == pqUniqueViolation
}

// retryable reports whether the whole transaction may be replayed.
func retryable(err error) bool {
	if errors.Is(err, models.ErrReferenceCollision) || errors.Is(err, models.ErrOptimisticLock) {
		return true
	}
	switch pqCode(err) {
	case pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}

// runInTx executes fn in a transaction and commits it. Retryable failures
// replay fn from scratch up to attempts times. Effects queued by fn run only
// after the attempt that committed.
func runInTx(ctx context.Context, db *sql.DB, attempts int, fn func(tx *sql.Tx, fx *effects) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		fx := &effects{}
		if err = inTx(ctx, db, fx, fn); err == nil {
			fx.drain(ctx)
			return nil
		}
		if !retryable(err) || attempt == attempts {
			return err
		}
		log.Printf("[TX] Attempt %d failed, retrying: %v", attempt, err)
	}
	return err
}

func inTx(ctx context.Context, db *sql.DB, fx *effects, fn func(tx *sql.Tx, fx *effects) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx, fx); err != nil {
		return err
	}
	return tx.Commit()
}
