package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrConcurrencyConflict marks lock timeouts, deadlocks and serialization failures.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	// ErrDuplicate marks unique constraint violations.
	ErrDuplicate = errors.New("duplicate key")
	// ErrCheckViolation marks CHECK constraint violations.
	ErrCheckViolation = errors.New("check constraint violated")
)

// Postgres constraint names surfaced to services.
const (
	ConstraintEnrollmentPair     = "enrollments_student_lesson_key"
	ConstraintPaymentExternalTxn = "payments_external_txn_id_key"
	ConstraintStudentCredit      = "students_credit_balance_check"
	ConstraintLedgerNewCredit    = "ledger_entries_new_credit_check"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateUniqueViolation      = "23505"
	sqlStateCheckViolation       = "23514"
)

// Transactor runs callbacks inside a READ COMMITTED transaction with a bounded lock wait.
type Transactor struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewTransactor constructs a Transactor. A zero lockTimeout leaves the server default.
func NewTransactor(db *sqlx.DB, lockTimeout time.Duration) *Transactor {
	return &Transactor{db: db, lockTimeout: lockTimeout}
}

// WithinTx commits when fn returns nil and rolls back on error or panic.
func (t *Transactor) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", translate(err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if t.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", translate(err))
		}
	}

	if err = fn(tx); err != nil {
		return translate(err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", translate(err))
	}
	return nil
}

// translate tags lib/pq errors with the package sentinels, keeping the original in the chain.
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		if errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	case sqlStateUniqueViolation:
		if errors.Is(err, ErrDuplicate) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case sqlStateCheckViolation:
		if errors.Is(err, ErrCheckViolation) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCheckViolation, err)
	}
	return err
}

// ConstraintName returns the violated constraint of a lib/pq error in err's chain.
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}
