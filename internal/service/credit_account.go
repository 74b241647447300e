package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/internal/repository"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

// maxMoneyAmount is the largest value a NUMERIC(10,2) money column holds.
var maxMoneyAmount = decimal.RequireFromString("99999999.99")

// CreditAccount is the only writer of student balances. Every change lands as a
// balance update plus one ledger entry in the caller's transaction.
type CreditAccount struct {
	logger *zap.Logger
}

// NewCreditAccount constructs a CreditAccount.
func NewCreditAccount(logger *zap.Logger) *CreditAccount {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditAccount{logger: logger}
}

// ApplyDelta moves the student's balance by delta. The student row must already be
// locked by tx. A result below zero fails with INSUFFICIENT_CREDIT and a result above
// maxMoneyAmount fails with VALIDATION_ERROR. Neither writes anything.
func (a *CreditAccount) ApplyDelta(ctx context.Context, tx repository.BookingTx, student *models.Student, delta decimal.Decimal, memo string) (decimal.Decimal, *models.LedgerEntry, error) {
	oldCredit := student.CreditBalance
	newCredit := oldCredit.Add(delta)
	if newCredit.IsNegative() {
		return oldCredit, nil, appErrors.Clone(appErrors.ErrInsufficientCredit, "")
	}
	if newCredit.GreaterThan(maxMoneyAmount) {
		return oldCredit, nil, appErrors.Clone(appErrors.ErrValidation, "credit balance would exceed the maximum of "+maxMoneyAmount.StringFixed(2))
	}

	if err := tx.UpdateCreditBalance(ctx, student.ID, newCredit); err != nil {
		return oldCredit, nil, fmt.Errorf("update credit balance: %w", err)
	}
	entry := &models.LedgerEntry{
		StudentID: student.ID,
		OldCredit: oldCredit,
		NewCredit: newCredit,
		Memo:      memo,
	}
	if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
		return oldCredit, nil, fmt.Errorf("append ledger entry: %w", err)
	}
	student.CreditBalance = newCredit

	a.logger.Debug("ledger entry staged",
		zap.String("student_id", student.ID),
		zap.String("old_credit", oldCredit.StringFixed(2)),
		zap.String("new_credit", newCredit.StringFixed(2)),
		zap.String("memo", memo),
	)
	return newCredit, entry, nil
}

// hasCredit reports whether balance covers amount.
func hasCredit(balance, amount decimal.Decimal) bool {
	return balance.GreaterThanOrEqual(amount)
}

func recordLedger(metrics *MetricsService, entries ...*models.LedgerEntry) {
	for _, entry := range entries {
		if entry != nil {
			metrics.RecordLedgerEntry(entry.Memo)
		}
	}
}
