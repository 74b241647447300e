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

const lessonColumns = `l.id, l.teacher_id, l.title, l.description, l.level, l.starts_at, l.ends_at, l.capacity, l.price, l.is_full, l.created_at, l.updated_at`

// LessonRepository persists lessons. It runs against the pool or a transaction.
type LessonRepository struct {
	db sqlx.ExtContext
}

// NewLessonRepository constructs a LessonRepository.
func NewLessonRepository(db sqlx.ExtContext) *LessonRepository {
	return &LessonRepository{db: db}
}

// FindByID returns the lesson or sql.ErrNoRows.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.LessonDetail, error) {
	query := `SELECT ` + lessonColumns + `, t.full_name AS teacher_name,
	(SELECT COUNT(*) FROM enrollments e WHERE e.lesson_id = l.id AND e.status = 'registered') AS registered_count
FROM lessons l JOIN teachers t ON t.id = l.teacher_id WHERE l.id = $1`
	var lesson models.LessonDetail
	if err := sqlx.GetContext(ctx, r.db, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// LockLesson loads the lesson row with FOR UPDATE.
func (r *LessonRepository) LockLesson(ctx context.Context, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons l WHERE l.id = $1 FOR UPDATE`
	var lesson models.Lesson
	if err := sqlx.GetContext(ctx, r.db, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// List returns lessons matching the filter with the total count.
func (r *LessonRepository) List(ctx context.Context, filter models.LessonFilter) ([]models.LessonDetail, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("l.teacher_id = $%d", len(args)))
	}
	if filter.Level > 0 {
		args = append(args, filter.Level)
		conditions = append(conditions, fmt.Sprintf("l.level = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("l.starts_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("l.starts_at <= $%d", len(args)))
	}
	if filter.AvailableOnly {
		conditions = append(conditions, "l.is_full = FALSE")
	}
	where := strings.Join(conditions, " AND ")

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, t.full_name AS teacher_name,
	(SELECT COUNT(*) FROM enrollments e WHERE e.lesson_id = l.id AND e.status = 'registered') AS registered_count
FROM lessons l JOIN teachers t ON t.id = l.teacher_id
WHERE %s ORDER BY l.starts_at %s LIMIT %d OFFSET %d`, lessonColumns, where, order, size, offset)

	var lessons []models.LessonDetail
	if err := sqlx.SelectContext(ctx, r.db, &lessons, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lessons: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM lessons l WHERE %s", where)
	if err := sqlx.GetContext(ctx, r.db, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lessons: %w", err)
	}
	return lessons, total, nil
}

// CountTeacherLessonsStartingBetween counts the teacher's lessons with start in [from, to].
func (r *LessonRepository) CountTeacherLessonsStartingBetween(ctx context.Context, teacherID string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM lessons WHERE teacher_id = $1 AND starts_at BETWEEN $2 AND $3`
	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, teacherID, from, to); err != nil {
		return 0, fmt.Errorf("count teacher lessons in window: %w", err)
	}
	return count, nil
}

// InsertLesson stores a new lesson, filling ID and timestamps when empty.
func (r *LessonRepository) InsertLesson(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now

	const query = `INSERT INTO lessons (id, teacher_id, title, description, level, starts_at, ends_at, capacity, price, is_full, created_at, updated_at)
VALUES (:id, :teacher_id, :title, :description, :level, :starts_at, :ends_at, :capacity, :price, :is_full, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, lesson); err != nil {
		return fmt.Errorf("insert lesson: %w", err)
	}
	return nil
}

// UpdateLesson writes the editable lesson fields. is_full is not touched here.
func (r *LessonRepository) UpdateLesson(ctx context.Context, lesson *models.Lesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET title = $1, description = $2, level = $3, starts_at = $4, ends_at = $5, capacity = $6, price = $7, updated_at = $8 WHERE id = $9`
	res, err := r.db.ExecContext(ctx, query, lesson.Title, lesson.Description, lesson.Level, lesson.Start, lesson.End, lesson.Capacity, lesson.Price, lesson.UpdatedAt, lesson.ID)
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return expectAffected(res, "update lesson")
}

// SetLessonFull persists a recomputed fullness flag.
func (r *LessonRepository) SetLessonFull(ctx context.Context, id string, full bool) error {
	const query = `UPDATE lessons SET is_full = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, full, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set lesson full: %w", err)
	}
	return expectAffected(res, "set lesson full")
}

// DeleteLesson removes the lesson. Enrollments cascade.
func (r *LessonRepository) DeleteLesson(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return expectAffected(res, "delete lesson")
}
