package dto

import "github.com/noah-isme/lessonbook-api/internal/models"

// StatementRequest captures POST /students/:id/statements payload.
type StatementRequest struct {
	Format models.StatementFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// StatementJobResponse is returned after enqueueing a statement export.
type StatementJobResponse struct {
	ID       string                 `json:"id"`
	Status   models.StatementStatus `json:"status"`
	Progress int                    `json:"progress"`
}

// StatementStatusResponse exposes job progress metadata.
type StatementStatusResponse struct {
	ID        string                 `json:"id"`
	StudentID string                 `json:"student_id"`
	Format    models.StatementFormat `json:"format"`
	Status    models.StatementStatus `json:"status"`
	Progress  int                    `json:"progress"`
	ResultURL *string                `json:"result_url,omitempty"`
	Error     *string                `json:"error,omitempty"`
}
