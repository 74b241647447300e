package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/lessonbook-api/internal/dto"
	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/internal/repository"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

const lessonCachePattern = "lessons:*"

type lessonQuery interface {
	FindByID(ctx context.Context, id string) (*models.LessonDetail, error)
	List(ctx context.Context, filter models.LessonFilter) ([]models.LessonDetail, int, error)
}

type lessonListPage struct {
	Items []models.LessonDetail `json:"items"`
	Total int                   `json:"total"`
}

// LessonService manages the lesson lifecycle.
type LessonService struct {
	store     bookingStore
	lessons   lessonQuery
	cache     *CacheService
	credit    *CreditAccount
	capacity  CapacityTracker
	schedule  ScheduleChecker
	retrier   *Retrier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewLessonService constructs LessonService.
func NewLessonService(store bookingStore, lessons lessonQuery, cache *CacheService, retrier *Retrier, metrics *MetricsService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{
		store:     store,
		lessons:   lessons,
		cache:     cache,
		credit:    NewCreditAccount(logger),
		retrier:   retrier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

// Create schedules a new lesson for the calling teacher. The teacher row stays
// locked while the blackout window is checked.
func (s *LessonService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateLessonRequest) (*models.Lesson, error) {
	if err := requireTeacher(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if req.Price == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "price is required")
	}
	if err := validatePrice(*req.Price); err != nil {
		return nil, err
	}

	lesson := &models.Lesson{
		TeacherID:   actor.UserID,
		Title:       req.Title,
		Description: req.Description,
		Level:       req.Level,
		Start:       req.Start.UTC(),
		End:         req.End.UTC(),
		Capacity:    req.Capacity,
		Price:       *req.Price,
		IsFull:      false,
	}

	err := s.retrier.Do(ctx, func() error {
		lesson.ID = ""
		return s.store.WithinTx(ctx, func(tx repository.BookingTx) error {
			if _, err := tx.LockTeacher(ctx, actor.UserID); err != nil {
				return notFoundOr(err, "teacher not found", "failed to load teacher")
			}
			conflict, err := s.schedule.HasConflict(ctx, tx, actor.UserID, lesson.Start)
			if err != nil {
				return err
			}
			if conflict {
				return appErrors.Clone(appErrors.ErrSchedulingConflict, "")
			}
			return tx.InsertLesson(ctx, lesson)
		})
	})
	if err != nil {
		return nil, bookingError(err, "failed to create lesson")
	}

	s.invalidate(ctx)
	s.logger.Info("lesson created", zap.String("lesson_id", lesson.ID), zap.String("teacher_id", lesson.TeacherID), zap.Time("start", lesson.Start))
	return lesson, nil
}

// Get returns one lesson with its teacher name and registered count.
func (s *LessonService) Get(ctx context.Context, id string) (*models.LessonDetail, error) {
	lesson, err := s.lessons.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "lesson not found", "failed to load lesson")
	}
	return lesson, nil
}

// List returns a page of lessons. Pages are cached when the lesson cache is on.
func (s *LessonService) List(ctx context.Context, query dto.LessonListQuery) ([]models.LessonDetail, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson query")
	}
	filter := models.LessonFilter{
		TeacherID:     query.TeacherID,
		Level:         query.Level,
		From:          query.From,
		To:            query.To,
		AvailableOnly: query.AvailableOnly,
		Page:          query.Page,
		PageSize:      query.PageSize,
		SortOrder:     query.SortOrder,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	key := lessonCacheKey(filter)
	var cached lessonListPage
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached.Items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}, nil
	}

	items, total, err := s.lessons.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	if items == nil {
		items = []models.LessonDetail{}
	}
	_ = s.cache.Set(ctx, key, lessonListPage{Items: items, Total: total}, s.cacheTTL)
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ListByTeacher lists the lessons of one teacher.
func (s *LessonService) ListByTeacher(ctx context.Context, teacherID string, query dto.LessonListQuery) ([]models.LessonDetail, *models.Pagination, error) {
	query.TeacherID = teacherID
	return s.List(ctx, query)
}

// Update edits a lesson owned by the caller. Capacity may not drop below the
// registered count; a new start time is not re-checked against the blackout window.
func (s *LessonService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateLessonRequest) (*models.Lesson, error) {
	if err := requireTeacher(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if req.Price != nil {
		if err := validatePrice(*req.Price); err != nil {
			return nil, err
		}
	}

	var updated *models.Lesson
	startChanged := false
	err := s.retrier.Do(ctx, func() error {
		return s.store.WithinTx(ctx, func(tx repository.BookingTx) error {
			lesson, err := tx.LockLesson(ctx, id)
			if err != nil {
				return notFoundOr(err, "lesson not found", "failed to load lesson")
			}
			if lesson.TeacherID != actor.UserID {
				return appErrors.Clone(appErrors.ErrForbidden, "lesson belongs to another teacher")
			}

			previousStart := lesson.Start
			applyLessonUpdate(lesson, req)
			if !lesson.End.After(lesson.Start) {
				return appErrors.Clone(appErrors.ErrValidation, "end must be after start")
			}
			if req.Capacity != nil {
				registered, err := tx.CountRegistered(ctx, lesson.ID)
				if err != nil {
					return err
				}
				if lesson.Capacity < registered {
					return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("capacity cannot be lower than the %d registered students", registered))
				}
			}

			if err := tx.UpdateLesson(ctx, lesson); err != nil {
				return err
			}
			if err := s.capacity.Sync(ctx, tx, lesson); err != nil {
				return err
			}
			startChanged = !lesson.Start.Equal(previousStart)
			updated = lesson
			return nil
		})
	})
	if err != nil {
		return nil, bookingError(err, "failed to update lesson")
	}

	if startChanged {
		s.logger.Warn("lesson start changed without blackout validation", zap.String("lesson_id", updated.ID), zap.Time("start", updated.Start))
	}
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes a lesson owned by the caller after refunding every registered seat.
func (s *LessonService) Delete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.LessonDeletionResult, error) {
	if err := requireTeacher(actor); err != nil {
		return nil, err
	}

	var result *dto.LessonDeletionResult
	err := s.retrier.Do(ctx, func() error {
		return s.store.WithinTx(ctx, func(tx repository.BookingTx) error {
			lesson, err := tx.LockLesson(ctx, id)
			if err != nil {
				return notFoundOr(err, "lesson not found", "failed to load lesson")
			}
			if lesson.TeacherID != actor.UserID {
				return appErrors.Clone(appErrors.ErrForbidden, "lesson belongs to another teacher")
			}

			enrollments, err := tx.ListLessonEnrollments(ctx, lesson.ID)
			if err != nil {
				return err
			}
			sort.Slice(enrollments, func(i, j int) bool {
				return enrollments[i].StudentID < enrollments[j].StudentID
			})

			result = &dto.LessonDeletionResult{LessonID: lesson.ID, Refunds: []models.LedgerEntry{}}
			for _, enrollment := range enrollments {
				if enrollment.Status != models.EnrollmentStatusRegistered {
					continue
				}
				student, err := tx.LockStudent(ctx, enrollment.StudentID)
				if err != nil {
					return err
				}
				_, entry, err := s.credit.ApplyDelta(ctx, tx, student, enrollment.Cost, models.MemoLessonCancellation)
				if err != nil {
					return err
				}
				result.Refunds = append(result.Refunds, *entry)
			}
			return tx.DeleteLesson(ctx, lesson.ID)
		})
	})
	if err != nil {
		return nil, bookingError(err, "failed to delete lesson")
	}

	for i := range result.Refunds {
		recordLedger(s.metrics, &result.Refunds[i])
	}
	s.invalidate(ctx)
	s.logger.Info("lesson deleted", zap.String("lesson_id", result.LessonID), zap.Int("refunds", len(result.Refunds)))
	return result, nil
}

func (s *LessonService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, lessonCachePattern)
}

func applyLessonUpdate(lesson *models.Lesson, req dto.UpdateLessonRequest) {
	if req.Title != nil {
		lesson.Title = *req.Title
	}
	if req.Description != nil {
		lesson.Description = *req.Description
	}
	if req.Level != nil {
		lesson.Level = *req.Level
	}
	if req.Start != nil {
		lesson.Start = req.Start.UTC()
	}
	if req.End != nil {
		lesson.End = req.End.UTC()
	}
	if req.Capacity != nil {
		lesson.Capacity = *req.Capacity
	}
	if req.Price != nil {
		lesson.Price = *req.Price
	}
}

// validatePrice accepts non-negative amounts with at most two decimal places that fit
// the money column.
func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return appErrors.Clone(appErrors.ErrValidation, "price must not be negative")
	}
	if price.GreaterThan(maxMoneyAmount) {
		return appErrors.Clone(appErrors.ErrValidation, "price exceeds the maximum of "+maxMoneyAmount.StringFixed(2))
	}
	if !price.Equal(price.Round(2)) {
		return appErrors.Clone(appErrors.ErrValidation, "price must have at most two decimal places")
	}
	return nil
}

func lessonCacheKey(filter models.LessonFilter) string {
	from, to := "", ""
	if filter.From != nil {
		from = filter.From.UTC().Format(time.RFC3339)
	}
	if filter.To != nil {
		to = filter.To.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("lessons:list:t=%s:l=%d:f=%s:u=%s:a=%t:p=%d:s=%d:o=%s",
		filter.TeacherID, filter.Level, from, to, filter.AvailableOnly, filter.Page, filter.PageSize, filter.SortOrder)
}
