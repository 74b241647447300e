package models

import "time"

// StatementFormat enumerates supported export formats.
type StatementFormat string

const (
	StatementFormatCSV StatementFormat = "csv"
	StatementFormatPDF StatementFormat = "pdf"
)

// StatementStatus captures background job lifecycle states.
type StatementStatus string

const (
	StatementStatusQueued     StatementStatus = "QUEUED"
	StatementStatusProcessing StatementStatus = "PROCESSING"
	StatementStatusFinished   StatementStatus = "FINISHED"
	StatementStatusFailed     StatementStatus = "FAILED"
)

// StatementJob tracks an asynchronous ledger statement export.
type StatementJob struct {
	ID          string          `db:"id" json:"id"`
	StudentID   string          `db:"student_id" json:"student_id"`
	Format      StatementFormat `db:"format" json:"format"`
	Status      StatementStatus `db:"status" json:"status"`
	Progress    int             `db:"progress" json:"progress"`
	ResultURL   *string         `db:"result_url" json:"result_url,omitempty"`
	Error       *string         `db:"error" json:"error,omitempty"`
	RequestedBy string          `db:"requested_by" json:"requested_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	FinishedAt  *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}
