package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/lessonbook-api/internal/models"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

type ledgerReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.LedgerEntry, error)
}

type studentRelations interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	IsEnrolledWithTeacher(ctx context.Context, studentID, teacherID string) (bool, error)
}

// LedgerService exposes the read side of the credit ledger.
type LedgerService struct {
	ledger   ledgerReader
	students studentRelations
	logger   *zap.Logger
}

// NewLedgerService constructs LedgerService.
func NewLedgerService(ledger ledgerReader, students studentRelations, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{ledger: ledger, students: students, logger: logger}
}

// History returns the student's ledger oldest first.
func (s *LedgerService) History(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.LedgerEntry, error) {
	if _, err := s.authorize(ctx, actor, studentID); err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger")
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return entries, nil
}

// Verify reconciles the stored balance with the ledger. The chain is intact when each
// entry starts from the previous entry's new credit.
func (s *LedgerService) Verify(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.LedgerVerification, error) {
	student, err := s.authorize(ctx, actor, studentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger")
	}

	report := VerifyLedger(student.ID, student.CreditBalance, entries)
	if !report.Consistent {
		s.logger.Warn("ledger inconsistency detected",
			zap.String("student_id", student.ID),
			zap.String("balance", student.CreditBalance.StringFixed(2)),
			zap.Bool("chain_intact", report.ChainIntact),
		)
	}
	return report, nil
}

// VerifyLedger checks entries (oldest first) against balance. The first entry's old
// credit is the opening balance. An account without entries still holds its opening
// balance, so any stored value is consistent.
func VerifyLedger(studentID string, balance decimal.Decimal, entries []models.LedgerEntry) *models.LedgerVerification {
	report := &models.LedgerVerification{
		StudentID:   studentID,
		Balance:     balance,
		EntryCount:  len(entries),
		ChainIntact: true,
	}

	var expected decimal.Decimal
	if len(entries) > 0 {
		expected = entries[0].OldCredit
	}
	for _, entry := range entries {
		if !entry.OldCredit.Equal(expected) {
			report.ChainIntact = false
			seq := entry.Seq
			report.BrokenAtSeq = &seq
			break
		}
		expected = entry.NewCredit
	}

	if n := len(entries); n > 0 {
		last := entries[n-1].NewCredit
		report.LastNewCredit = &last
		report.Consistent = report.ChainIntact && balance.Equal(last)
	} else {
		report.Consistent = true
	}
	return report
}

func (s *LedgerService) authorize(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.Student, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.IsStudent() && actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another student's ledger")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	if actor.IsTeacher() {
		ok, err := s.students.IsEnrolledWithTeacher(ctx, studentID, actor.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in your lessons")
		}
	}
	return student, nil
}
