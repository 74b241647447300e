package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lessonbook-api/internal/dto"
	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/internal/repository"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

var lessonStart = time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)

func requireCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok, "expected *errors.Error, got %T: %v", err, err)
	assert.Equal(t, want.Code, appErr.Code, appErr.Message)
}

func newEnrollmentFixture() (*memoryStore, *EnrollmentService) {
	store := newMemoryStore()
	store.addTeacher("t1")
	store.addTeacher("t2")
	store.addLesson("l1", "t1", 2, "10.00", lessonStart)
	store.addStudent("s1", "25.00")
	store.addStudent("s2", "25.00")
	store.addStudent("s3", "25.00")
	store.addStudent("poor", "5.00")

	svc := NewEnrollmentService(store, memoryEnrollments{store}, memoryLessons{store}, memoryStudents{store}, nil, NewRetrier(0, zap.NewNop()), NewMetricsService(), nil, zap.NewNop())
	return store, svc
}

func enroll(t *testing.T, svc *EnrollmentService, studentID, lessonID string) *dto.EnrollmentResult {
	t.Helper()
	res, err := svc.Enroll(context.Background(), studentActor(studentID), dto.EnrollRequest{LessonID: lessonID})
	require.NoError(t, err)
	return res
}

func TestEnrollmentServiceEnrollRegistersThenWaitlists(t *testing.T) {
	store, svc := newEnrollmentFixture()

	first := enroll(t, svc, "s1", "l1")
	assert.Equal(t, models.EnrollmentStatusRegistered, first.Enrollment.Status)
	assert.Equal(t, "15.00", first.CreditBalance.StringFixed(2))
	require.NotNil(t, first.LedgerEntry)
	assert.Equal(t, models.MemoLessonRegistration, first.LedgerEntry.Memo)
	assert.Equal(t, "25.00", first.LedgerEntry.OldCredit.StringFixed(2))
	assert.Equal(t, "15.00", first.LedgerEntry.NewCredit.StringFixed(2))
	assert.False(t, first.LessonFull)

	second := enroll(t, svc, "s2", "l1")
	assert.Equal(t, models.EnrollmentStatusRegistered, second.Enrollment.Status)
	assert.True(t, second.LessonFull)
	assert.True(t, store.lesson(t, "l1").IsFull)

	third := enroll(t, svc, "s3", "l1")
	assert.Equal(t, models.EnrollmentStatusWaitlisted, third.Enrollment.Status)
	assert.Nil(t, third.LedgerEntry)
	assert.Equal(t, "25.00", store.balance(t, "s3"))
	assert.Empty(t, store.entriesFor("s3"))
	assert.True(t, third.Enrollment.Cost.Equal(decimal.RequireFromString("10")))
}

func TestEnrollmentServiceEnrollRejections(t *testing.T) {
	store, svc := newEnrollmentFixture()
	ctx := context.Background()

	_, err := svc.Enroll(ctx, studentActor("poor"), dto.EnrollRequest{LessonID: "l1"})
	requireCode(t, err, appErrors.ErrInsufficientCredit)
	_, found := store.enrollmentFor("poor", "l1")
	assert.False(t, found)
	assert.Equal(t, "5.00", store.balance(t, "poor"))

	enroll(t, svc, "s1", "l1")
	_, err = svc.Enroll(ctx, studentActor("s1"), dto.EnrollRequest{LessonID: "l1"})
	requireCode(t, err, appErrors.ErrAlreadyEnrolled)
	assert.Equal(t, "15.00", store.balance(t, "s1"))

	_, err = svc.Enroll(ctx, teacherActor("t1"), dto.EnrollRequest{LessonID: "l1"})
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = svc.Enroll(ctx, nil, dto.EnrollRequest{LessonID: "l1"})
	requireCode(t, err, appErrors.ErrUnauthorized)

	_, err = svc.Enroll(ctx, studentActor("s2"), dto.EnrollRequest{LessonID: "missing"})
	requireCode(t, err, appErrors.ErrNotFound)

	_, err = svc.Enroll(ctx, studentActor("s2"), dto.EnrollRequest{})
	requireCode(t, err, appErrors.ErrValidation)
}

func TestEnrollmentServiceChecksCreditBeforeCapacity(t *testing.T) {
	store, svc := newEnrollmentFixture()
	enroll(t, svc, "s1", "l1")
	enroll(t, svc, "s2", "l1")

	// Credit is checked before seat availability.
	_, err := svc.Enroll(context.Background(), studentActor("poor"), dto.EnrollRequest{LessonID: "l1"})
	requireCode(t, err, appErrors.ErrInsufficientCredit)
	_, found := store.enrollmentFor("poor", "l1")
	assert.False(t, found)
}

func TestEnrollmentServiceChangeStatus(t *testing.T) {
	store, svc := newEnrollmentFixture()
	ctx := context.Background()
	reg1 := enroll(t, svc, "s1", "l1")
	enroll(t, svc, "s2", "l1")
	waiting := enroll(t, svc, "s3", "l1")

	promote := dto.ChangeStatusRequest{Status: models.EnrollmentStatusRegistered}
	demote := dto.ChangeStatusRequest{Status: models.EnrollmentStatusWaitlisted}

	t.Run("promotion into a full lesson is a no-op", func(t *testing.T) {
		res, err := svc.ChangeStatus(ctx, teacherActor("t1"), waiting.Enrollment.ID, promote)
		require.NoError(t, err)
		assert.False(t, res.Changed)
		assert.Equal(t, models.EnrollmentStatusWaitlisted, res.Enrollment.Status)
		assert.Equal(t, "25.00", store.balance(t, "s3"))
	})

	t.Run("other teacher is forbidden", func(t *testing.T) {
		_, err := svc.ChangeStatus(ctx, teacherActor("t2"), reg1.Enrollment.ID, demote)
		requireCode(t, err, appErrors.ErrForbidden)
	})

	t.Run("students cannot change status", func(t *testing.T) {
		_, err := svc.ChangeStatus(ctx, studentActor("s1"), reg1.Enrollment.ID, demote)
		requireCode(t, err, appErrors.ErrForbidden)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := svc.ChangeStatus(ctx, teacherActor("t1"), reg1.Enrollment.ID, dto.ChangeStatusRequest{Status: "cancelled"})
		requireCode(t, err, appErrors.ErrValidation)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		res, err := svc.ChangeStatus(ctx, teacherActor("t1"), reg1.Enrollment.ID, promote)
		require.NoError(t, err)
		assert.False(t, res.Changed)
		assert.Nil(t, res.LedgerEntry)
		assert.Equal(t, "15.00", store.balance(t, "s1"))
	})

	t.Run("demotion refunds and frees the seat", func(t *testing.T) {
		res, err := svc.ChangeStatus(ctx, teacherActor("t1"), reg1.Enrollment.ID, demote)
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, models.EnrollmentStatusWaitlisted, res.Enrollment.Status)
		require.NotNil(t, res.LedgerEntry)
		assert.Equal(t, models.MemoMovedToWaitlist, res.LedgerEntry.Memo)
		assert.Equal(t, "25.00", store.balance(t, "s1"))
		assert.False(t, res.LessonFull)
		assert.False(t, store.lesson(t, "l1").IsFull)
	})

	t.Run("promotion charges the enrollment cost", func(t *testing.T) {
		res, err := svc.ChangeStatus(ctx, teacherActor("t1"), waiting.Enrollment.ID, promote)
		require.NoError(t, err)
		assert.True(t, res.Changed)
		require.NotNil(t, res.LedgerEntry)
		assert.Equal(t, models.MemoPromotedToRegister, res.LedgerEntry.Memo)
		assert.Equal(t, "15.00", store.balance(t, "s3"))
		assert.True(t, store.lesson(t, "l1").IsFull)
	})

	t.Run("unknown enrollment", func(t *testing.T) {
		_, err := svc.ChangeStatus(ctx, teacherActor("t1"), "missing", demote)
		requireCode(t, err, appErrors.ErrNotFound)
	})
}

func TestEnrollmentServicePromotionRequiresCredit(t *testing.T) {
	store, svc := newEnrollmentFixture()
	ctx := context.Background()
	store.addLesson("l2", "t1", 1, "10.00", lessonStart.Add(24*time.Hour))
	enroll(t, svc, "s1", "l2")
	waiting := enroll(t, svc, "s2", "l2")

	// Drain s2 to 5.00 on other lessons, then free the seat.
	store.addLesson("l3", "t2", 2, "10.00", lessonStart.Add(48*time.Hour))
	store.addLesson("l4", "t2", 2, "10.00", lessonStart.Add(72*time.Hour))
	enroll(t, svc, "s2", "l3")
	enroll(t, svc, "s2", "l4")
	require.Equal(t, "5.00", store.balance(t, "s2"))
	first, found := store.enrollmentFor("s1", "l2")
	require.True(t, found)
	_, err := svc.Cancel(ctx, studentActor("s1"), first.ID)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, teacherActor("t1"), waiting.Enrollment.ID, dto.ChangeStatusRequest{Status: models.EnrollmentStatusRegistered})
	requireCode(t, err, appErrors.ErrInsufficientCredit)
	current, _ := store.enrollmentFor("s2", "l2")
	assert.Equal(t, models.EnrollmentStatusWaitlisted, current.Status)
	assert.Equal(t, "5.00", store.balance(t, "s2"))
}

func TestEnrollmentServiceCancel(t *testing.T) {
	store, svc := newEnrollmentFixture()
	ctx := context.Background()
	reg := enroll(t, svc, "s1", "l1")
	enroll(t, svc, "s2", "l1")
	waiting := enroll(t, svc, "s3", "l1")

	t.Run("another student is forbidden", func(t *testing.T) {
		_, err := svc.Cancel(ctx, studentActor("s2"), reg.Enrollment.ID)
		requireCode(t, err, appErrors.ErrForbidden)
	})

	t.Run("another teacher is forbidden", func(t *testing.T) {
		_, err := svc.Cancel(ctx, teacherActor("t2"), reg.Enrollment.ID)
		requireCode(t, err, appErrors.ErrForbidden)
	})

	t.Run("waitlisted cancel has no refund", func(t *testing.T) {
		res, err := svc.Cancel(ctx, studentActor("s3"), waiting.Enrollment.ID)
		require.NoError(t, err)
		assert.True(t, res.Refunded.IsZero())
		assert.Nil(t, res.LedgerEntry)
		assert.True(t, res.LessonFull)
		assert.Equal(t, "25.00", store.balance(t, "s3"))
	})

	t.Run("registered cancel refunds the original cost", func(t *testing.T) {
		store.mu.Lock()
		lesson := store.lessons["l1"]
		lesson.Price = decimal.RequireFromString("99")
		store.lessons["l1"] = lesson
		store.mu.Unlock()

		res, err := svc.Cancel(ctx, studentActor("s1"), reg.Enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, "10.00", res.Refunded.StringFixed(2))
		assert.Equal(t, "25.00", res.CreditBalance.StringFixed(2))
		require.NotNil(t, res.LedgerEntry)
		assert.Equal(t, models.MemoLessonCancellation, res.LedgerEntry.Memo)
		assert.False(t, res.LessonFull)
		_, found := store.enrollmentFor("s1", "l1")
		assert.False(t, found)
	})

	t.Run("teacher cancels a student", func(t *testing.T) {
		other, found := store.enrollmentFor("s2", "l1")
		require.True(t, found)
		res, err := svc.Cancel(ctx, teacherActor("t1"), other.ID)
		require.NoError(t, err)
		assert.Equal(t, "25.00", res.CreditBalance.StringFixed(2))
	})

	t.Run("already cancelled", func(t *testing.T) {
		_, err := svc.Cancel(ctx, studentActor("s1"), reg.Enrollment.ID)
		requireCode(t, err, appErrors.ErrNotFound)
	})

	for _, id := range []string{"s1", "s2", "s3"} {
		student := store.students[id]
		report := VerifyLedger(id, student.CreditBalance, store.entriesFor(id))
		assert.True(t, report.Consistent, id)
	}
}

func TestEnrollmentServiceCancelDoesNotPromoteWaitlist(t *testing.T) {
	store, svc := newEnrollmentFixture()
	reg := enroll(t, svc, "s1", "l1")
	enroll(t, svc, "s2", "l1")
	enroll(t, svc, "s3", "l1")

	_, err := svc.Cancel(context.Background(), studentActor("s1"), reg.Enrollment.ID)
	require.NoError(t, err)

	waiting, found := store.enrollmentFor("s3", "l1")
	require.True(t, found)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, waiting.Status)
	assert.Equal(t, "25.00", store.balance(t, "s3"))
}

func TestEnrollmentServiceConcurrentEnrollHonoursCapacity(t *testing.T) {
	store := newMemoryStore()
	store.addTeacher("t1")
	store.addLesson("l1", "t1", 2, "10.00", lessonStart)
	for i := 0; i < 6; i++ {
		store.addStudent(fmt.Sprintf("s%d", i), "10.00")
	}
	svc := NewEnrollmentService(store, memoryEnrollments{store}, memoryLessons{store}, memoryStudents{store}, nil, nil, nil, nil, zap.NewNop())

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Enroll(context.Background(), studentActor(id), dto.EnrollRequest{LessonID: "l1"})
			errs <- err
		}(fmt.Sprintf("s%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	store.mu.Lock()
	registered := store.registeredCount("l1")
	total := len(store.enrollments)
	store.mu.Unlock()
	assert.Equal(t, 2, registered)
	assert.Equal(t, 6, total)
	assert.True(t, store.lesson(t, "l1").IsFull)

	charged := 0
	for i := 0; i < 6; i++ {
		if store.balance(t, fmt.Sprintf("s%d", i)) == "0.00" {
			charged++
		}
	}
	assert.Equal(t, 2, charged)
}

func TestEnrollmentServiceRetriesConcurrencyConflictOnce(t *testing.T) {
	store, svc := newEnrollmentFixture()
	store.failTx = []error{repository.ErrConcurrencyConflict}

	res := enroll(t, svc, "s1", "l1")
	assert.Equal(t, models.EnrollmentStatusRegistered, res.Enrollment.Status)
	assert.Equal(t, 2, store.txCalls)
	assert.Len(t, store.entriesFor("s1"), 1)
}

func TestEnrollmentServiceGivesUpAfterSecondConflict(t *testing.T) {
	store, svc := newEnrollmentFixture()
	store.failTx = []error{repository.ErrConcurrencyConflict, repository.ErrConcurrencyConflict}

	_, err := svc.Enroll(context.Background(), studentActor("s1"), dto.EnrollRequest{LessonID: "l1"})
	requireCode(t, err, appErrors.ErrConcurrencyConflict)
	assert.Equal(t, 2, store.txCalls)
	assert.Equal(t, "25.00", store.balance(t, "s1"))
}

func TestEnrollmentServiceDoesNotRetryOtherErrors(t *testing.T) {
	store, svc := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), studentActor("poor"), dto.EnrollRequest{LessonID: "l1"})
	requireCode(t, err, appErrors.ErrInsufficientCredit)
	assert.Equal(t, 1, store.txCalls)
}

func TestEnrollmentServiceListings(t *testing.T) {
	store, svc := newEnrollmentFixture()
	ctx := context.Background()
	store.addLesson("l2", "t2", 3, "5.00", lessonStart.Add(24*time.Hour))
	enroll(t, svc, "s1", "l1")
	enroll(t, svc, "s1", "l2")
	enroll(t, svc, "s2", "l1")

	byLesson, err := svc.ListByLesson(ctx, teacherActor("t1"), "l1")
	require.NoError(t, err)
	assert.Len(t, byLesson, 2)

	_, err = svc.ListByLesson(ctx, teacherActor("t2"), "l1")
	requireCode(t, err, appErrors.ErrForbidden)

	own, err := svc.ListByStudent(ctx, studentActor("s1"), "s1")
	require.NoError(t, err)
	assert.Len(t, own, 2)

	_, err = svc.ListByStudent(ctx, studentActor("s2"), "s1")
	requireCode(t, err, appErrors.ErrForbidden)

	scoped, err := svc.ListByStudent(ctx, teacherActor("t2"), "s1")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "l2", scoped[0].LessonID)
}
