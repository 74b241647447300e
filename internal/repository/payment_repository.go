package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

// PaymentRepository stores payment receipts keyed by external transaction id.
type PaymentRepository struct {
	db sqlx.ExtContext
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db sqlx.ExtContext) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// FindPaymentByExternalID returns the receipt or sql.ErrNoRows.
func (r *PaymentRepository) FindPaymentByExternalID(ctx context.Context, externalTxnID string) (*models.Payment, error) {
	const query = `SELECT id, student_id, amount, external_txn_id, ledger_entry_id, created_at FROM payments WHERE external_txn_id = $1`
	var payment models.Payment
	if err := sqlx.GetContext(ctx, r.db, &payment, query, externalTxnID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// InsertPayment stores the receipt.
func (r *PaymentRepository) InsertPayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO payments (id, student_id, amount, external_txn_id, ledger_entry_id, created_at)
VALUES (:id, :student_id, :amount, :external_txn_id, :ledger_entry_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, payment); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}
