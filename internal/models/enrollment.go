package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus is the seat state of an enrollment. Cancellation deletes the row.
type EnrollmentStatus string

const (
	EnrollmentStatusRegistered EnrollmentStatus = "registered"
	EnrollmentStatusWaitlisted EnrollmentStatus = "waitlisted"
)

// Valid reports whether s is registered or waitlisted.
func (s EnrollmentStatus) Valid() bool {
	return s == EnrollmentStatusRegistered || s == EnrollmentStatusWaitlisted
}

// Enrollment links one student to one lesson. Cost is the lesson price at
// enrollment time and never changes afterwards.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	LessonID  string           `db:"lesson_id" json:"lesson_id"`
	Cost      decimal.Decimal  `db:"cost" json:"cost"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	Comment   *string          `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and lesson info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string    `db:"student_name" json:"student_name"`
	LessonTitle string    `db:"lesson_title" json:"lesson_title"`
	LessonStart time.Time `db:"lesson_start" json:"lesson_start"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
}
