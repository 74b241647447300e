package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

// EnrollRequest captures POST /lessons/:id/enrollments payload.
type EnrollRequest struct {
	LessonID string  `json:"-"`
	Comment  *string `json:"comment,omitempty" validate:"omitempty,max=1000"`
}

// ChangeStatusRequest captures PATCH /enrollments/:id payload.
type ChangeStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required"`
}

// EnrollmentResult reports an enrollment mutation together with the resulting balance.
type EnrollmentResult struct {
	Enrollment    models.Enrollment   `json:"enrollment"`
	CreditBalance decimal.Decimal     `json:"credit_balance"`
	LessonFull    bool                `json:"lesson_full"`
	LedgerEntry   *models.LedgerEntry `json:"ledger_entry,omitempty"`
	Changed       bool                `json:"changed"`
}

// CancellationResult is returned by DELETE /enrollments/:id.
type CancellationResult struct {
	EnrollmentID  string              `json:"enrollment_id"`
	LessonID      string              `json:"lesson_id"`
	StudentID     string              `json:"student_id"`
	Refunded      decimal.Decimal     `json:"refunded"`
	CreditBalance decimal.Decimal     `json:"credit_balance"`
	LessonFull    bool                `json:"lesson_full"`
	LedgerEntry   *models.LedgerEntry `json:"ledger_entry,omitempty"`
}
