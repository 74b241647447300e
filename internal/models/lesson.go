package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lesson limits.
const (
	MinLessonCapacity = 1
	MaxLessonCapacity = 5
	MinLessonLevel    = 1
	MaxLessonLevel    = 5
)

// Lesson is a scheduled session offered by one teacher. IsFull is a cache of
// registered count >= capacity and is only written after a recompute.
type Lesson struct {
	ID          string          `db:"id" json:"id"`
	TeacherID   string          `db:"teacher_id" json:"teacher_id"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	Level       int             `db:"level" json:"level"`
	Start       time.Time       `db:"starts_at" json:"start"`
	End         time.Time       `db:"ends_at" json:"end"`
	Capacity    int             `db:"capacity" json:"capacity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	IsFull      bool            `db:"is_full" json:"is_full"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// LessonDetail adds teacher and seat information for listings.
type LessonDetail struct {
	Lesson
	TeacherName     string `db:"teacher_name" json:"teacher_name"`
	RegisteredCount int    `db:"registered_count" json:"registered_count"`
}

// LessonFilter narrows lesson listings.
type LessonFilter struct {
	TeacherID     string
	Level         int
	From          *time.Time
	To            *time.Time
	AvailableOnly bool
	Page          int
	PageSize      int
	SortOrder     string
}
