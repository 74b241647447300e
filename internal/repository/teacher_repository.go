package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

const teacherColumns = `id, username, full_name, email, password_hash, bio, created_at, updated_at`

// TeacherRepository persists teachers.
type TeacherRepository struct {
	db sqlx.ExtContext
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db sqlx.ExtContext) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// FindByID returns the teacher or sql.ErrNoRows.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := sqlx.GetContext(ctx, r.db, &teacher, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindAccountByUsername returns login credentials or sql.ErrNoRows.
func (r *TeacherRepository) FindAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var account models.Account
	const query = `SELECT id, username, email, full_name, password_hash FROM teachers WHERE username = $1`
	if err := sqlx.GetContext(ctx, r.db, &account, query, username); err != nil {
		return nil, err
	}
	account.Role = models.RoleTeacher
	return &account, nil
}

// LockTeacher serialises lesson creation for one teacher.
func (r *TeacherRepository) LockTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := sqlx.GetContext(ctx, r.db, &teacher, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// Create inserts a teacher.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	teacher.CreatedAt = now
	teacher.UpdatedAt = now

	const query = `INSERT INTO teachers (id, username, full_name, email, password_hash, bio, created_at, updated_at)
VALUES (:id, :username, :full_name, :email, :password_hash, :bio, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}
