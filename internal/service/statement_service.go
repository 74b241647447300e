package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lessonbook-api/internal/dto"
	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/internal/repository"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
	"github.com/noah-isme/lessonbook-api/pkg/jobs"
)

// StatementJobType tags statement export jobs on the queue.
const StatementJobType = "ledger_statement"

type statementJobStore interface {
	Create(ctx context.Context, job *models.StatementJob) error
	GetByID(ctx context.Context, id string) (*models.StatementJob, error)
	Update(ctx context.Context, id string, params repository.UpdateStatementJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.StatementJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.StatementJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type statementGenerator interface {
	Generate(ctx context.Context, job *models.StatementJob) (*ExportResult, error)
}

// StatementServiceConfig governs queue recovery and cleanup.
type StatementServiceConfig struct {
	Enabled         bool
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// StatementDownload aggregates resolved download data.
type StatementDownload struct {
	File      *os.File
	Filename  string
	Format    models.StatementFormat
	ExpiresAt time.Time
}

// StatementService orchestrates asynchronous ledger statement exports.
type StatementService struct {
	repo      statementJobStore
	students  studentReader
	queue     jobDispatcher
	exporter  *StatementExporter
	validator *validator.Validate
	logger    *zap.Logger
	cfg       StatementServiceConfig
}

// NewStatementService constructs the statement service.
func NewStatementService(repo statementJobStore, students studentReader, queue jobDispatcher, exporter *StatementExporter, validate *validator.Validate, logger *zap.Logger, cfg StatementServiceConfig) *StatementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &StatementService{
		repo:      repo,
		students:  students,
		queue:     queue,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateJob persists a statement request for the calling student and enqueues it.
func (s *StatementService) CreateJob(ctx context.Context, actor *models.JWTClaims, studentID string, req dto.StatementRequest) (*dto.StatementJobResponse, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "statements are disabled")
	}
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	if actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "statements can only be requested for your own account")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid statement payload")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}

	job := &models.StatementJob{
		StudentID:   studentID,
		Format:      req.Format,
		Status:      models.StatementStatusQueued,
		RequestedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create statement job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: StatementJobType}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue statement job")
	}
	return &dto.StatementJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to the student who requested it.
func (s *StatementService) GetStatus(ctx context.Context, actor *models.JWTClaims, id string) (*dto.StatementStatusResponse, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "statements are disabled")
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "statement job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statement job")
	}
	if job.RequestedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "statement job belongs to another user")
	}
	resp := &dto.StatementStatusResponse{
		ID:        job.ID,
		StudentID: job.StudentID,
		Format:    job.Format,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
	}
	if job.Error != nil && *job.Error != "" {
		resp.Error = job.Error
	}
	return resp, nil
}

// ResolveDownload validates token and opens the stored statement file.
func (s *StatementService) ResolveDownload(ctx context.Context, token string) (*StatementDownload, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "statements are disabled")
	}
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "statement job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load statement job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.StatementStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "statement not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open statement file")
	}
	return &StatementDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a restart.
func (s *StatementService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued statement jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: StatementJobType}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired statements periodically.
func (s *StatementService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *StatementService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	pending, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Sugar().Warnw("cleanup list failed", "error", err)
		return
	}
	for _, job := range pending {
		if job.ResultURL == nil {
			continue
		}
		token := extractToken(*job.ResultURL)
		if token == "" {
			continue
		}
		_, relPath, _, err := s.exporter.ParseToken(token, true)
		if err != nil {
			continue
		}
		if err := s.exporter.Delete(relPath); err != nil {
			s.logger.Sugar().Warnw("cleanup delete failed", "job_id", job.ID, "error", err)
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

func (s *StatementService) markFailed(ctx context.Context, id, msg string) {
	status := models.StatementStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateStatementJobParams{
		Status:     &status,
		Progress:   &progress,
		Error:      &msg,
		FinishedAt: &now,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to mark job failed", "job_id", id, "error", err)
	}
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// StatementWorker bridges queue jobs to the StatementExporter.
type StatementWorker struct {
	repo     statementJobStore
	exporter statementGenerator
	logger   *zap.Logger
}

// NewStatementWorker constructs a worker.
func NewStatementWorker(repo statementJobStore, exporter statementGenerator, logger *zap.Logger) *StatementWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementWorker{repo: repo, exporter: exporter, logger: logger}
}

// Handle processes a queue job. Errors are returned so the queue can retry.
func (w *StatementWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.StatementStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateStatementJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		return err
	}

	finished := models.StatementStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := result.URL
	noError := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateStatementJobParams{
		Status:     &finished,
		Progress:   &progress,
		ResultURL:  &url,
		Error:      &noError,
		FinishedAt: &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	w.logger.Info("statement generated", zap.String("job_id", job.ID), zap.String("student_id", record.StudentID))
	return nil
}

// MarkFailed records a job that exhausted its retries. It is the queue's OnFailure hook.
func (w *StatementWorker) MarkFailed(job jobs.Job, cause error) {
	status := models.StatementStatusFailed
	progress := 100
	now := time.Now().UTC()
	msg := cause.Error()
	if err := w.repo.Update(context.Background(), job.ID, repository.UpdateStatementJobParams{
		Status:     &status,
		Progress:   &progress,
		Error:      &msg,
		FinishedAt: &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", err)
	}
}
