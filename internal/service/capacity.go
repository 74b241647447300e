package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/internal/repository"
)

// IsFull is the single fullness rule for a lesson.
func IsFull(registered, capacity int) bool {
	return registered >= capacity
}

// CapacityTracker recomputes lesson fullness inside a booking transaction.
type CapacityTracker struct{}

// Recompute counts registered enrollments for lesson and reports whether it is full.
func (CapacityTracker) Recompute(ctx context.Context, tx repository.BookingTx, lesson *models.Lesson) (bool, error) {
	registered, err := tx.CountRegistered(ctx, lesson.ID)
	if err != nil {
		return false, fmt.Errorf("count registered: %w", err)
	}
	return IsFull(registered, lesson.Capacity), nil
}

// Sync recomputes fullness and persists it on the lesson row.
func (t CapacityTracker) Sync(ctx context.Context, tx repository.BookingTx, lesson *models.Lesson) error {
	full, err := t.Recompute(ctx, tx, lesson)
	if err != nil {
		return err
	}
	if full == lesson.IsFull {
		return nil
	}
	if err := tx.SetLessonFull(ctx, lesson.ID, full); err != nil {
		return err
	}
	lesson.IsFull = full
	return nil
}
