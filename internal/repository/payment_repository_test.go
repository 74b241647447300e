package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

func TestPaymentRepositoryFindByExternalID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE external_txn_id = $1")).
		WithArgs("cs_test_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "amount", "external_txn_id", "ledger_entry_id", "created_at"}).
			AddRow("pay-1", "student-1", "25.50", "cs_test_1", "l-1", time.Now()))

	payment, err := repo.FindPaymentByExternalID(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("25.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryFindByExternalIDMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectQuery("FROM payments").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindPaymentByExternalID(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPaymentRepositoryInsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(sqlmock.AnyArg(), "student-1", decimal.NewFromInt(30), "cs_test_2", "l-9", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment := &models.Payment{StudentID: "student-1", Amount: decimal.NewFromInt(30), ExternalTxnID: "cs_test_2", LedgerEntryID: "l-9"}
	require.NoError(t, repo.InsertPayment(context.Background(), payment))
	assert.NotEmpty(t, payment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
