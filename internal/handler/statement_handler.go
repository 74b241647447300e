package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lessonbook-api/internal/dto"
	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/internal/service"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
	"github.com/noah-isme/lessonbook-api/pkg/response"
)

type statementService interface {
	CreateJob(ctx context.Context, actor *models.JWTClaims, studentID string, req dto.StatementRequest) (*dto.StatementJobResponse, error)
	GetStatus(ctx context.Context, actor *models.JWTClaims, id string) (*dto.StatementStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.StatementDownload, error)
}

// StatementHandler exposes ledger statement exports.
type StatementHandler struct {
	statements statementService
}

// NewStatementHandler constructs StatementHandler.
func NewStatementHandler(statements statementService) *StatementHandler {
	return &StatementHandler{statements: statements}
}

// Create godoc
// @Summary Request a ledger statement
// @Tags Statements
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.StatementRequest true "Format"
// @Success 202 {object} response.Envelope
// @Router /students/{id}/statements [post]
func (h *StatementHandler) Create(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.StatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.statements.CreateJob(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Statement job status
// @Tags Statements
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /statements/{id} [get]
func (h *StatementHandler) Status(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	status, err := h.statements.GetStatus(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a finished statement
// @Description The signed token in the path is the only credential
// @Tags Statements
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /statements/download/{token} [get]
func (h *StatementHandler) Download(c *gin.Context) {
	result, err := h.statements.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close()

	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat statement"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.DataFromReader(http.StatusOK, info.Size(), contentType(result.Format), result.File, nil)
}

func contentType(format models.StatementFormat) string {
	if format == models.StatementFormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}
