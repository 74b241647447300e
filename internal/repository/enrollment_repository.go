package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

const enrollmentColumns = `e.id, e.student_id, e.lesson_id, e.cost, e.status, e.comment, e.created_at, e.updated_at`

// EnrollmentRepository persists student/lesson enrollments.
type EnrollmentRepository struct {
	db sqlx.ExtContext
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db sqlx.ExtContext) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns the enrollment or sql.ErrNoRows.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.db, &enrollment, `SELECT `+enrollmentColumns+` FROM enrollments e WHERE e.id = $1`, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// LockEnrollment loads the enrollment row with FOR UPDATE.
func (r *EnrollmentRepository) LockEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.db, &enrollment, `SELECT `+enrollmentColumns+` FROM enrollments e WHERE e.id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindEnrollmentByPair returns the enrollment for (student, lesson) or sql.ErrNoRows.
func (r *EnrollmentRepository) FindEnrollmentByPair(ctx context.Context, studentID, lessonID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.student_id = $1 AND e.lesson_id = $2`
	if err := sqlx.GetContext(ctx, r.db, &enrollment, query, studentID, lessonID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CountRegistered counts registered enrollments on the lesson.
func (r *EnrollmentRepository) CountRegistered(ctx context.Context, lessonID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM enrollments WHERE lesson_id = $1 AND status = $2`
	if err := sqlx.GetContext(ctx, r.db, &count, query, lessonID, models.EnrollmentStatusRegistered); err != nil {
		return 0, fmt.Errorf("count registered enrollments: %w", err)
	}
	return count, nil
}

// ListLessonEnrollments returns the lesson's enrollments in creation order.
func (r *EnrollmentRepository) ListLessonEnrollments(ctx context.Context, lessonID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.lesson_id = $1 ORDER BY e.created_at ASC, e.id ASC`
	if err := sqlx.SelectContext(ctx, r.db, &enrollments, query, lessonID); err != nil {
		return nil, fmt.Errorf("list lesson enrollments: %w", err)
	}
	return enrollments, nil
}

// ListDetailsByLesson returns enrollments of a lesson with student names.
func (r *EnrollmentRepository) ListDetailsByLesson(ctx context.Context, lessonID string) ([]models.EnrollmentDetail, error) {
	query := `SELECT ` + enrollmentColumns + `, s.full_name AS student_name, l.title AS lesson_title, l.starts_at AS lesson_start, l.teacher_id
FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN lessons l ON l.id = e.lesson_id
WHERE e.lesson_id = $1
ORDER BY e.created_at ASC, e.id ASC`
	var details []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.db, &details, query, lessonID); err != nil {
		return nil, fmt.Errorf("list enrollments by lesson: %w", err)
	}
	return details, nil
}

// ListDetailsByStudent returns a student's enrollments ordered by lesson start.
func (r *EnrollmentRepository) ListDetailsByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := `SELECT ` + enrollmentColumns + `, s.full_name AS student_name, l.title AS lesson_title, l.starts_at AS lesson_start, l.teacher_id
FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN lessons l ON l.id = e.lesson_id
WHERE e.student_id = $1
ORDER BY l.starts_at ASC, e.id ASC`
	var details []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.db, &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments by student: %w", err)
	}
	return details, nil
}

// InsertEnrollment stores a new enrollment. A second row for the same pair fails
// with ErrDuplicate once translated by the Transactor.
func (r *EnrollmentRepository) InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, student_id, lesson_id, cost, status, comment, created_at, updated_at)
VALUES (:id, :student_id, :lesson_id, :cost, :status, :comment, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// UpdateEnrollmentStatus changes the status. Cost is never rewritten.
func (r *EnrollmentRepository) UpdateEnrollmentStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return expectAffected(res, "update enrollment status")
}

// DeleteEnrollment removes the enrollment row.
func (r *EnrollmentRepository) DeleteEnrollment(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return expectAffected(res, "delete enrollment")
}
