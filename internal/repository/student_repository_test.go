package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

func TestStudentRepositoryLockStudent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)
	now := time.Now()

	mock.ExpectQuery(`FROM students WHERE id = \$1 FOR UPDATE`).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "full_name", "email", "password_hash", "credit_balance", "created_at", "updated_at"}).
			AddRow("student-1", "sam", "Sam", "sam@example.com", "hash", "100.00", now, now))

	student, err := repo.LockStudent(context.Background(), "student-1")
	require.NoError(t, err)
	assert.True(t, student.CreditBalance.Equal(decimal.NewFromInt(100)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdateCreditBalance(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET credit_balance = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(decimal.NewFromInt(50), sqlmock.AnyArg(), "student-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateCreditBalance(context.Background(), "student-1", decimal.NewFromInt(50)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindAccountByUsername(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, email, full_name, password_hash FROM students WHERE username = $1")).
		WithArgs("sam").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "full_name", "password_hash"}).
			AddRow("student-1", "sam", "sam@example.com", "Sam", "hash"))

	account, err := repo.FindAccountByUsername(context.Background(), "sam")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, account.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryIsEnrolledWithTeacher(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("student-1", "teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.IsEnrolledWithTeacher(context.Background(), "student-1", "teacher-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
