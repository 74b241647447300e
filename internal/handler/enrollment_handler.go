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

type enrollmentService interface {
	Enroll(ctx context.Context, actor *models.JWTClaims, req dto.EnrollRequest) (*dto.EnrollmentResult, error)
	ChangeStatus(ctx context.Context, actor *models.JWTClaims, enrollmentID string, req dto.ChangeStatusRequest) (*dto.EnrollmentResult, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, enrollmentID string) (*dto.CancellationResult, error)
	ListByLesson(ctx context.Context, actor *models.JWTClaims, lessonID string) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.EnrollmentDetail, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll in a lesson
// @Description Registers the caller, or waitlists them when the lesson is full
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.EnrollRequest false "Optional comment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /lessons/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.EnrollRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	req.LessonID = c.Param("id")

	result, err := h.enrollments.Enroll(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListByLesson godoc
// @Summary List a lesson's enrollments
// @Tags Enrollments
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/enrollments [get]
func (h *EnrollmentHandler) ListByLesson(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	items, err := h.enrollments.ListByLesson(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(items))
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// ListByStudent godoc
// @Summary List a student's enrollments
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/enrollments [get]
func (h *EnrollmentHandler) ListByStudent(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	items, err := h.enrollments.ListByStudent(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(items))
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// ChangeStatus godoc
// @Summary Change enrollment status
// @Description Promotion into a full lesson leaves the enrollment waitlisted
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.ChangeStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enrollments/{id} [patch]
func (h *EnrollmentHandler) ChangeStatus(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.ChangeStatus(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel enrollment
// @Description Registered enrollments are refunded
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	result, err := h.enrollments.Cancel(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
