package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

func TestStatementRepositoryCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStatementRepository(db)

	mock.ExpectExec("INSERT INTO statement_jobs").
		WithArgs(sqlmock.AnyArg(), "student-1", "csv", "QUEUED", 0, nil, nil, "student-1", sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &models.StatementJob{StudentID: "student-1", Format: models.StatementFormatCSV, RequestedBy: "student-1"}
	require.NoError(t, repo.Create(context.Background(), job))
	assert.Equal(t, models.StatementStatusQueued, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementRepositoryUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStatementRepository(db)

	status := models.StatementStatusFinished
	progress := 100
	url := "/api/v1/statements/download/token"
	finished := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE statement_jobs SET status = $1, progress = $2, result_url = $3, finished_at = $4, updated_at = $5 WHERE id = $6")).
		WithArgs("FINISHED", progress, url, finished, sqlmock.AnyArg(), "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateStatementJobParams{Status: &status, Progress: &progress, ResultURL: &url, FinishedAt: &finished})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatementRepositoryUpdateNothing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStatementRepository(db)

	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateStatementJobParams{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
