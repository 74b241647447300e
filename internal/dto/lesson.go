package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/lessonbook-api/internal/models"
)

// CreateLessonRequest captures POST /lessons payload.
type CreateLessonRequest struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Description string           `json:"description" validate:"required"`
	Level       int              `json:"level" validate:"required,min=1,max=5"`
	Start       time.Time        `json:"start" validate:"required"`
	End         time.Time        `json:"end" validate:"required,gtfield=Start"`
	Capacity    int              `json:"capacity" validate:"required,min=1,max=5"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
}

// UpdateLessonRequest captures PATCH /lessons/:id payload. Nil fields are left unchanged.
type UpdateLessonRequest struct {
	Title       *string          `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description,omitempty" validate:"omitempty,min=1"`
	Level       *int             `json:"level,omitempty" validate:"omitempty,min=1,max=5"`
	Start       *time.Time       `json:"start,omitempty"`
	End         *time.Time       `json:"end,omitempty"`
	Capacity    *int             `json:"capacity,omitempty" validate:"omitempty,min=1,max=5"`
	Price       *decimal.Decimal `json:"price,omitempty"`
}

// LessonListQuery holds GET /lessons query parameters.
type LessonListQuery struct {
	TeacherID     string     `form:"teacher_id"`
	Level         int        `form:"level" validate:"omitempty,min=1,max=5"`
	From          *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To            *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	AvailableOnly bool       `form:"available_only"`
	Page          int        `form:"page" validate:"omitempty,min=1"`
	PageSize      int        `form:"page_size" validate:"omitempty,min=1,max=100"`
	SortOrder     string     `form:"sort_order" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// LessonDeletionResult reports the refunds issued when a lesson is deleted.
type LessonDeletionResult struct {
	LessonID string               `json:"lesson_id"`
	Refunds  []models.LedgerEntry `json:"refunds"`
}
