package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lessonbook-api/internal/dto"
	"github.com/noah-isme/lessonbook-api/internal/middleware"
	"github.com/noah-isme/lessonbook-api/internal/models"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
	"github.com/noah-isme/lessonbook-api/pkg/response"
)

type lessonService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateLessonRequest) (*models.Lesson, error)
	Get(ctx context.Context, id string) (*models.LessonDetail, error)
	List(ctx context.Context, query dto.LessonListQuery) ([]models.LessonDetail, *models.Pagination, error)
	ListByTeacher(ctx context.Context, teacherID string, query dto.LessonListQuery) ([]models.LessonDetail, *models.Pagination, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateLessonRequest) (*models.Lesson, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.LessonDeletionResult, error)
}

// LessonHandler exposes lesson endpoints.
type LessonHandler struct {
	lessons lessonService
}

// NewLessonHandler constructs LessonHandler.
func NewLessonHandler(lessons lessonService) *LessonHandler {
	return &LessonHandler{lessons: lessons}
}

// List godoc
// @Summary List lessons
// @Tags Lessons
// @Produce json
// @Param teacher_id query string false "Filter by teacher"
// @Param level query int false "Filter by level"
// @Param from query string false "Start at or after (RFC3339)"
// @Param to query string false "Start at or before (RFC3339)"
// @Param available_only query bool false "Only lessons with free seats"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param sort_order query string false "asc or desc by start"
// @Success 200 {object} response.Envelope
// @Router /lessons [get]
func (h *LessonHandler) List(c *gin.Context) {
	var query dto.LessonListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	lessons, pagination, err := h.lessons.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, pagination, middleware.ExtractMeta(c))
}

// ListByTeacher godoc
// @Summary List a teacher's lessons
// @Tags Lessons
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/lessons [get]
func (h *LessonHandler) ListByTeacher(c *gin.Context) {
	var query dto.LessonListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	lessons, pagination, err := h.lessons.ListByTeacher(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *LessonHandler) Get(c *gin.Context) {
	lesson, err := h.lessons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Create godoc
// @Summary Create lesson
// @Description Lessons of one teacher must start at least three hours apart
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons [post]
func (h *LessonHandler) Create(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lesson, err := h.lessons.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// Update godoc
// @Summary Update lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.UpdateLessonRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [patch]
func (h *LessonHandler) Update(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.UpdateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lesson, err := h.lessons.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// Delete godoc
// @Summary Delete lesson
// @Description Registered students are refunded before the lesson is removed
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id} [delete]
func (h *LessonHandler) Delete(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	result, err := h.lessons.Delete(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
