package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

const statementJobColumns = `id, student_id, format, status, progress, result_url, error, requested_by, created_at, updated_at, finished_at`

// StatementRepository persists statement export jobs.
type StatementRepository struct {
	db *sqlx.DB
}

// NewStatementRepository constructs the repository.
func NewStatementRepository(db *sqlx.DB) *StatementRepository {
	return &StatementRepository{db: db}
}

// Create inserts a queued job.
func (r *StatementRepository) Create(ctx context.Context, job *models.StatementJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.StatementStatusQueued
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	const query = `INSERT INTO statement_jobs (id, student_id, format, status, progress, result_url, error, requested_by, created_at, updated_at, finished_at)
VALUES (:id, :student_id, :format, :status, :progress, :result_url, :error, :requested_by, :created_at, :updated_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create statement job: %w", err)
	}
	return nil
}

// GetByID returns the job or sql.ErrNoRows.
func (r *StatementRepository) GetByID(ctx context.Context, id string) (*models.StatementJob, error) {
	var job models.StatementJob
	if err := r.db.GetContext(ctx, &job, `SELECT `+statementJobColumns+` FROM statement_jobs WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateStatementJobParams lists the mutable columns; nil fields are left alone.
type UpdateStatementJobParams struct {
	Status     *models.StatementStatus
	Progress   *int
	ResultURL  *string
	Error      *string
	FinishedAt *time.Time
}

// Update applies the non-nil fields of params.
func (r *StatementRepository) Update(ctx context.Context, id string, params UpdateStatementJobParams) error {
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.ResultURL != nil {
		add("result_url", *params.ResultURL)
	}
	if params.Error != nil {
		add("error", *params.Error)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE statement_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update statement job: %w", err)
	}
	return nil
}

// ListQueued returns queued jobs oldest first, for recovery after restart.
func (r *StatementRepository) ListQueued(ctx context.Context, limit int) ([]models.StatementJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + statementJobColumns + ` FROM statement_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	var jobs []models.StatementJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.StatementStatusQueued, limit); err != nil {
		return nil, fmt.Errorf("list queued statement jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs older than cutoff for file cleanup.
func (r *StatementRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.StatementJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + statementJobColumns + ` FROM statement_jobs
WHERE status = $1 AND finished_at IS NOT NULL AND finished_at < $2 ORDER BY finished_at ASC LIMIT $3`
	var jobs []models.StatementJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.StatementStatusFinished, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished statement jobs: %w", err)
	}
	return jobs, nil
}
