package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lessonbook-api/internal/dto"
	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/internal/repository"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListDetailsByLesson(ctx context.Context, lessonID string) ([]models.EnrollmentDetail, error)
	ListDetailsByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type lessonReader interface {
	FindByID(ctx context.Context, id string) (*models.LessonDetail, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// EnrollmentService runs the enrollment state machine: enroll, status change and
// cancellation. Each operation is one transaction that locks lesson, then student,
// then enrollment.
type EnrollmentService struct {
	store       bookingStore
	enrollments enrollmentReader
	lessons     lessonReader
	students    studentReader
	cache       *CacheService
	credit      *CreditAccount
	capacity    CapacityTracker
	retrier     *Retrier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(store bookingStore, enrollments enrollmentReader, lessons lessonReader, students studentReader, cache *CacheService, retrier *Retrier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		store:       store,
		enrollments: enrollments,
		lessons:     lessons,
		students:    students,
		cache:       cache,
		credit:      NewCreditAccount(logger),
		retrier:     retrier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Enroll registers the calling student in a lesson, or waitlists them when the
// lesson is full. Registration deducts the lesson price.
func (s *EnrollmentService) Enroll(ctx context.Context, actor *models.JWTClaims, req dto.EnrollRequest) (*dto.EnrollmentResult, error) {
	if err := requireStudent(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.LessonID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lesson id is required")
	}

	var result *dto.EnrollmentResult
	err := s.retrier.Do(ctx, func() error {
		return s.store.WithinTx(ctx, func(tx repository.BookingTx) error {
			lesson, err := tx.LockLesson(ctx, req.LessonID)
			if err != nil {
				return notFoundOr(err, "lesson not found", "failed to load lesson")
			}
			student, err := tx.LockStudent(ctx, actor.UserID)
			if err != nil {
				return notFoundOr(err, "student not found", "failed to load student")
			}

			if _, err := tx.FindEnrollmentByPair(ctx, student.ID, lesson.ID); err == nil {
				return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
			} else if !errors.Is(err, sql.ErrNoRows) {
				return err
			}

			if !hasCredit(student.CreditBalance, lesson.Price) {
				return appErrors.Clone(appErrors.ErrInsufficientCredit, "credit balance does not cover the lesson price")
			}

			full, err := s.capacity.Recompute(ctx, tx, lesson)
			if err != nil {
				return err
			}

			enrollment := &models.Enrollment{
				StudentID: student.ID,
				LessonID:  lesson.ID,
				Cost:      lesson.Price,
				Status:    models.EnrollmentStatusWaitlisted,
				Comment:   req.Comment,
			}
			var entry *models.LedgerEntry
			if !full {
				enrollment.Status = models.EnrollmentStatusRegistered
				if _, entry, err = s.credit.ApplyDelta(ctx, tx, student, lesson.Price.Neg(), models.MemoLessonRegistration); err != nil {
					return err
				}
			}

			if err := tx.InsertEnrollment(ctx, enrollment); err != nil {
				return err
			}
			if err := s.capacity.Sync(ctx, tx, lesson); err != nil {
				return err
			}

			result = &dto.EnrollmentResult{
				Enrollment:    *enrollment,
				CreditBalance: student.CreditBalance,
				LessonFull:    lesson.IsFull,
				LedgerEntry:   entry,
				Changed:       true,
			}
			return nil
		})
	})
	if err != nil {
		s.metrics.RecordBooking("enroll", OutcomeRejected)
		return nil, bookingError(err, "failed to enroll")
	}

	recordLedger(s.metrics, result.LedgerEntry)
	s.metrics.RecordBooking("enroll", string(result.Enrollment.Status))
	_ = s.cache.Invalidate(ctx, lessonCachePattern)
	s.logger.Info("student enrolled",
		zap.String("student_id", result.Enrollment.StudentID),
		zap.String("lesson_id", result.Enrollment.LessonID),
		zap.String("status", string(result.Enrollment.Status)),
		zap.String("credit_balance", result.CreditBalance.StringFixed(2)),
	)
	return result, nil
}

// ChangeStatus moves an enrollment between registered and waitlisted on behalf of
// the lesson's teacher. Promotion into a full lesson leaves it waitlisted.
func (s *EnrollmentService) ChangeStatus(ctx context.Context, actor *models.JWTClaims, enrollmentID string, req dto.ChangeStatusRequest) (*dto.EnrollmentResult, error) {
	if err := requireTeacher(actor); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be registered or waitlisted")
	}

	current, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}

	var result *dto.EnrollmentResult
	err = s.retrier.Do(ctx, func() error {
		return s.store.WithinTx(ctx, func(tx repository.BookingTx) error {
			lesson, err := tx.LockLesson(ctx, current.LessonID)
			if err != nil {
				return notFoundOr(err, "lesson not found", "failed to load lesson")
			}
			if lesson.TeacherID != actor.UserID {
				return appErrors.Clone(appErrors.ErrForbidden, "lesson belongs to another teacher")
			}
			student, err := tx.LockStudent(ctx, current.StudentID)
			if err != nil {
				return notFoundOr(err, "student not found", "failed to load student")
			}
			enrollment, err := tx.LockEnrollment(ctx, enrollmentID)
			if err != nil {
				return notFoundOr(err, "enrollment not found", "failed to load enrollment")
			}

			var entry *models.LedgerEntry
			changed := false
			switch {
			case enrollment.Status == req.Status:
			case req.Status == models.EnrollmentStatusRegistered:
				full, err := s.capacity.Recompute(ctx, tx, lesson)
				if err != nil {
					return err
				}
				if full {
					break
				}
				if !hasCredit(student.CreditBalance, enrollment.Cost) {
					return appErrors.Clone(appErrors.ErrInsufficientCredit, "student credit does not cover the enrollment cost")
				}
				if _, entry, err = s.credit.ApplyDelta(ctx, tx, student, enrollment.Cost.Neg(), models.MemoPromotedToRegister); err != nil {
					return err
				}
				changed = true
			default:
				if _, entry, err = s.credit.ApplyDelta(ctx, tx, student, enrollment.Cost, models.MemoMovedToWaitlist); err != nil {
					return err
				}
				changed = true
			}

			if changed {
				if err := tx.UpdateEnrollmentStatus(ctx, enrollment.ID, req.Status); err != nil {
					return err
				}
				enrollment.Status = req.Status
			}
			if err := s.capacity.Sync(ctx, tx, lesson); err != nil {
				return err
			}

			result = &dto.EnrollmentResult{
				Enrollment:    *enrollment,
				CreditBalance: student.CreditBalance,
				LessonFull:    lesson.IsFull,
				LedgerEntry:   entry,
				Changed:       changed,
			}
			return nil
		})
	})
	if err != nil {
		s.metrics.RecordBooking("change_status", OutcomeRejected)
		return nil, bookingError(err, "failed to change enrollment status")
	}

	outcome := OutcomeNoop
	if result.Changed {
		outcome = string(result.Enrollment.Status)
	}
	recordLedger(s.metrics, result.LedgerEntry)
	s.metrics.RecordBooking("change_status", outcome)
	_ = s.cache.Invalidate(ctx, lessonCachePattern)
	s.logger.Info("enrollment status changed",
		zap.String("enrollment_id", result.Enrollment.ID),
		zap.String("requested", string(req.Status)),
		zap.String("status", string(result.Enrollment.Status)),
		zap.Bool("changed", result.Changed),
	)
	return result, nil
}

// Cancel deletes an enrollment, refunding its cost when it held a seat. The owning
// student or the lesson's teacher may cancel. Waitlisted students are not promoted.
func (s *EnrollmentService) Cancel(ctx context.Context, actor *models.JWTClaims, enrollmentID string) (*dto.CancellationResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	current, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	if actor.IsStudent() && current.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}

	var result *dto.CancellationResult
	err = s.retrier.Do(ctx, func() error {
		return s.store.WithinTx(ctx, func(tx repository.BookingTx) error {
			lesson, err := tx.LockLesson(ctx, current.LessonID)
			if err != nil {
				return notFoundOr(err, "lesson not found", "failed to load lesson")
			}
			if actor.IsTeacher() && lesson.TeacherID != actor.UserID {
				return appErrors.Clone(appErrors.ErrForbidden, "lesson belongs to another teacher")
			}
			student, err := tx.LockStudent(ctx, current.StudentID)
			if err != nil {
				return notFoundOr(err, "student not found", "failed to load student")
			}
			enrollment, err := tx.LockEnrollment(ctx, enrollmentID)
			if err != nil {
				return notFoundOr(err, "enrollment not found", "failed to load enrollment")
			}

			result = &dto.CancellationResult{
				EnrollmentID:  enrollment.ID,
				LessonID:      lesson.ID,
				StudentID:     student.ID,
				CreditBalance: student.CreditBalance,
			}
			if enrollment.Status == models.EnrollmentStatusRegistered {
				_, entry, err := s.credit.ApplyDelta(ctx, tx, student, enrollment.Cost, models.MemoLessonCancellation)
				if err != nil {
					return err
				}
				result.Refunded = enrollment.Cost
				result.CreditBalance = student.CreditBalance
				result.LedgerEntry = entry
			}

			if err := tx.DeleteEnrollment(ctx, enrollment.ID); err != nil {
				return err
			}
			if err := s.capacity.Sync(ctx, tx, lesson); err != nil {
				return err
			}
			result.LessonFull = lesson.IsFull
			return nil
		})
	})
	if err != nil {
		s.metrics.RecordBooking("cancel", OutcomeRejected)
		return nil, bookingError(err, "failed to cancel enrollment")
	}

	recordLedger(s.metrics, result.LedgerEntry)
	s.metrics.RecordBooking("cancel", OutcomeCancelled)
	_ = s.cache.Invalidate(ctx, lessonCachePattern)
	s.logger.Info("enrollment cancelled",
		zap.String("enrollment_id", result.EnrollmentID),
		zap.String("lesson_id", result.LessonID),
		zap.String("refunded", result.Refunded.StringFixed(2)),
	)
	return result, nil
}

// ListByLesson returns a lesson's enrollments to its teacher.
func (s *EnrollmentService) ListByLesson(ctx context.Context, actor *models.JWTClaims, lessonID string) ([]models.EnrollmentDetail, error) {
	if err := requireTeacher(actor); err != nil {
		return nil, err
	}
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		return nil, notFoundOr(err, "lesson not found", "failed to load lesson")
	}
	if lesson.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lesson belongs to another teacher")
	}
	items, err := s.enrollments.ListDetailsByLesson(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return items, nil
}

// ListByStudent returns a student's enrollments. Students see their own; teachers
// see the student's enrollments in their lessons.
func (s *EnrollmentService) ListByStudent(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.EnrollmentDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.IsStudent() && actor.UserID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another student's enrollments")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		return nil, notFoundOr(err, "student not found", "failed to load student")
	}
	items, err := s.enrollments.ListDetailsByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if actor.IsStudent() {
		return items, nil
	}
	owned := make([]models.EnrollmentDetail, 0, len(items))
	for _, item := range items {
		if item.TeacherID == actor.UserID {
			owned = append(owned, item)
		}
	}
	return owned, nil
}
