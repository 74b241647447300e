package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/lessonbook-api/internal/repository"
)

// BlackoutWindow is how close two lessons of one teacher may start.
const BlackoutWindow = 3 * time.Hour

// ScheduleChecker enforces the teacher blackout window at lesson creation.
type ScheduleChecker struct{}

// HasConflict reports whether the teacher already has a lesson starting within
// BlackoutWindow of start, both bounds inclusive. Callers hold the teacher lock.
func (ScheduleChecker) HasConflict(ctx context.Context, tx repository.BookingTx, teacherID string, start time.Time) (bool, error) {
	count, err := tx.CountTeacherLessonsStartingBetween(ctx, teacherID, start.Add(-BlackoutWindow), start.Add(BlackoutWindow))
	if err != nil {
		return false, fmt.Errorf("check schedule conflict: %w", err)
	}
	return count > 0, nil
}
