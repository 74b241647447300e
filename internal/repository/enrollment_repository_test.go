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

var enrollmentRowColumns = []string{"id", "student_id", "lesson_id", "cost", "status", "comment", "created_at", "updated_at"}

func TestEnrollmentRepositoryCountRegistered(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE lesson_id = $1 AND status = $2")).
		WithArgs("lesson-1", "registered").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountRegistered(context.Background(), "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByPair(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments e WHERE e.student_id = $1 AND e.lesson_id = $2")).
		WithArgs("student-1", "lesson-1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).
			AddRow("enr-1", "student-1", "lesson-1", "50.00", "waitlisted", nil, now, now))

	enrollment, err := repo.FindEnrollmentByPair(context.Background(), "student-1", "lesson-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, enrollment.Status)
	assert.True(t, enrollment.Cost.Equal(decimal.NewFromInt(50)))
	assert.Nil(t, enrollment.Comment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryLockEnrollment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`FROM enrollments e WHERE e.id = \$1 FOR UPDATE`).
		WithArgs("enr-404").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LockEnrollment(context.Background(), "enr-404")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryInsertEnrollment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)
	comment := "see you there"

	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "student-1", "lesson-1", decimal.NewFromInt(50), "registered", comment, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{StudentID: "student-1", LessonID: "lesson-1", Cost: decimal.NewFromInt(50), Status: models.EnrollmentStatusRegistered, Comment: &comment}
	require.NoError(t, repo.InsertEnrollment(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $1, updated_at = $2 WHERE id = $3")).
		WithArgs("waitlisted", sqlmock.AnyArg(), "enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateEnrollmentStatus(context.Background(), "enr-1", models.EnrollmentStatusWaitlisted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.DeleteEnrollment(context.Background(), "enr-1"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListDetailsByLesson(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)
	now := time.Now()

	columns := append(append([]string{}, enrollmentRowColumns...), "student_name", "lesson_title", "lesson_start", "teacher_id")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.lesson_id = $1 ORDER BY e.created_at ASC, e.id ASC")).
		WithArgs("lesson-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("enr-1", "student-1", "lesson-1", "50", "registered", nil, now, now, "Sam", "Piano", now, "teacher-1").
			AddRow("enr-2", "student-2", "lesson-1", "50", "waitlisted", "late", now, now, "Kim", "Piano", now, "teacher-1"))

	details, err := repo.ListDetailsByLesson(context.Background(), "lesson-1")
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "Kim", details[1].StudentName)
	require.NotNil(t, details[1].Comment)
	assert.Equal(t, "late", *details[1].Comment)
	assert.NoError(t, mock.ExpectationsWereMet())
}
