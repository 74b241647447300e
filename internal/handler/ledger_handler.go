package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lessonbook-api/internal/middleware"
	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/pkg/response"
)

type ledgerService interface {
	History(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.LedgerEntry, error)
	Verify(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.LedgerVerification, error)
}

// LedgerHandler exposes a student's credit ledger.
type LedgerHandler struct {
	ledger ledgerService
}

// NewLedgerHandler constructs LedgerHandler.
func NewLedgerHandler(ledger ledgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// History godoc
// @Summary Credit ledger history
// @Description Entries in the order they were appended
// @Tags Ledger
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/ledger [get]
func (h *LedgerHandler) History(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	entries, err := h.ledger.History(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(entries))
	response.JSON(c, http.StatusOK, entries, nil, middleware.ExtractMeta(c))
}

// Verify godoc
// @Summary Verify credit ledger
// @Description Replays the ledger chain against the stored balance
// @Tags Ledger
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/ledger/verify [get]
func (h *LedgerHandler) Verify(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	report, err := h.ledger.Verify(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
