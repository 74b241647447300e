package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/lessonbook-api/internal/dto"
	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/internal/repository"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

// PaymentService turns confirmed external payments into credit. Confirmation is
// idempotent on the external transaction id.
type PaymentService struct {
	store     bookingStore
	credit    *CreditAccount
	retrier   *Retrier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(store bookingStore, retrier *Retrier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		store:     store,
		credit:    NewCreditAccount(logger),
		retrier:   retrier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Confirm credits the student once per external transaction. Replays return the
// original receipt with Duplicate set.
func (s *PaymentService) Confirm(ctx context.Context, req dto.ConfirmPaymentRequest) (*models.PaymentReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	if req.Amount.GreaterThan(maxMoneyAmount) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount exceeds the maximum of "+maxMoneyAmount.StringFixed(2))
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must have at most two decimal places")
	}

	receipt, err := s.confirm(ctx, req)
	if err != nil && errors.Is(err, repository.ErrDuplicate) && repository.ConstraintName(err) == repository.ConstraintPaymentExternalTxn {
		// Another confirmation of the same transaction committed first.
		receipt, err = s.confirm(ctx, req)
	}
	if err != nil {
		s.metrics.RecordPayment(OutcomeRejected)
		return nil, bookingError(err, "failed to confirm payment")
	}

	if receipt.Duplicate {
		s.metrics.RecordPayment(OutcomeDuplicate)
		s.logger.Info("payment already applied", zap.String("external_txn_id", req.ExternalTxnID), zap.String("payment_id", receipt.Payment.ID))
		return receipt, nil
	}
	recordLedger(s.metrics, &receipt.LedgerEntry)
	s.metrics.RecordPayment(OutcomeApplied)
	s.logger.Info("payment applied",
		zap.String("student_id", receipt.Payment.StudentID),
		zap.String("external_txn_id", receipt.Payment.ExternalTxnID),
		zap.String("amount", receipt.Payment.Amount.StringFixed(2)),
		zap.String("credit_balance", receipt.LedgerEntry.NewCredit.StringFixed(2)),
	)
	return receipt, nil
}

func (s *PaymentService) confirm(ctx context.Context, req dto.ConfirmPaymentRequest) (*models.PaymentReceipt, error) {
	var receipt *models.PaymentReceipt
	err := s.retrier.Do(ctx, func() error {
		return s.store.WithinTx(ctx, func(tx repository.BookingTx) error {
			student, err := tx.LockStudent(ctx, req.StudentID)
			if err != nil {
				return notFoundOr(err, "student not found", "failed to load student")
			}

			existing, err := tx.FindPaymentByExternalID(ctx, req.ExternalTxnID)
			switch {
			case err == nil:
				if existing.StudentID != student.ID {
					return appErrors.Clone(appErrors.ErrConflict, "external transaction already applied to another student")
				}
				entry, err := tx.FindLedgerEntry(ctx, existing.LedgerEntryID)
				if err != nil {
					return err
				}
				if !existing.Amount.Equal(req.Amount) {
					s.logger.Warn("payment replay with different amount",
						zap.String("external_txn_id", req.ExternalTxnID),
						zap.String("stored", existing.Amount.StringFixed(2)),
						zap.String("requested", req.Amount.StringFixed(2)),
					)
				}
				receipt = &models.PaymentReceipt{Payment: *existing, LedgerEntry: *entry, Duplicate: true}
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}

			_, entry, err := s.credit.ApplyDelta(ctx, tx, student, req.Amount, models.MemoPurchaseCredit)
			if err != nil {
				return err
			}
			payment := &models.Payment{
				StudentID:     student.ID,
				Amount:        req.Amount,
				ExternalTxnID: req.ExternalTxnID,
				LedgerEntryID: entry.ID,
			}
			if err := tx.InsertPayment(ctx, payment); err != nil {
				return err
			}
			receipt = &models.PaymentReceipt{Payment: *payment, LedgerEntry: *entry}
			return nil
		})
	})
	return receipt, err
}

// minorUnitsToAmount converts a provider amount in cents into a decimal amount.
func minorUnitsToAmount(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
