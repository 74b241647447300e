package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

const studentColumns = `id, username, full_name, email, password_hash, credit_balance, created_at, updated_at`

// StudentRepository persists students and their credit balance.
type StudentRepository struct {
	db sqlx.ExtContext
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db sqlx.ExtContext) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns the student or sql.ErrNoRows.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := sqlx.GetContext(ctx, r.db, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindAccountByUsername returns login credentials or sql.ErrNoRows.
func (r *StudentRepository) FindAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var account models.Account
	const query = `SELECT id, username, email, full_name, password_hash FROM students WHERE username = $1`
	if err := sqlx.GetContext(ctx, r.db, &account, query, username); err != nil {
		return nil, err
	}
	account.Role = models.RoleStudent
	return &account, nil
}

// LockStudent loads the student row with FOR UPDATE.
func (r *StudentRepository) LockStudent(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := sqlx.GetContext(ctx, r.db, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// UpdateCreditBalance overwrites the cached balance. Only the credit account calls this.
func (r *StudentRepository) UpdateCreditBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	const query = `UPDATE students SET credit_balance = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, balance, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update credit balance: %w", err)
	}
	return expectAffected(res, "update credit balance")
}

// Create inserts a student with a zero balance. Credit only arrives through the ledger.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	student.CreditBalance = decimal.Zero

	const query = `INSERT INTO students (id, username, full_name, email, password_hash, credit_balance, created_at, updated_at)
VALUES (:id, :username, :full_name, :email, :password_hash, :credit_balance, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// IsEnrolledWithTeacher reports whether the student holds any enrollment in one of the teacher's lessons.
func (r *StudentRepository) IsEnrolledWithTeacher(ctx context.Context, studentID, teacherID string) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM enrollments e JOIN lessons l ON l.id = e.lesson_id
	WHERE e.student_id = $1 AND l.teacher_id = $2
)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, query, studentID, teacherID); err != nil {
		return false, fmt.Errorf("check student teacher relation: %w", err)
	}
	return exists, nil
}
