package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lessonbook-api/internal/dto"
	"github.com/noah-isme/lessonbook-api/internal/models"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
	"github.com/noah-isme/lessonbook-api/pkg/response"
)

const maxWebhookBody = 64 << 10

type paymentService interface {
	Confirm(ctx context.Context, req dto.ConfirmPaymentRequest) (*models.PaymentReceipt, error)
}

type webhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (*dto.WebhookResult, error)
}

// PaymentHandler receives confirmed payments from the payment processor.
type PaymentHandler struct {
	payments paymentService
	webhooks webhookProcessor
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments paymentService, webhooks webhookProcessor) *PaymentHandler {
	return &PaymentHandler{payments: payments, webhooks: webhooks}
}

// Confirm godoc
// @Summary Confirm a payment
// @Description Credits the student once per external transaction id
// @Tags Payments
// @Accept json
// @Produce json
// @Param X-Internal-Token header string true "Shared secret"
// @Param payload body dto.ConfirmPaymentRequest true "Payment"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/confirm [post]
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	receipt, err := h.payments.Confirm(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipt, nil)
}

// StripeWebhook godoc
// @Summary Stripe webhook
// @Description Applies paid checkout sessions as credit purchases
// @Tags Payments
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe signature"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /payments/stripe/webhook [post]
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	if h.webhooks == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "stripe webhook is not configured"))
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrPayloadTooLarge.Code, appErrors.ErrPayloadTooLarge.Status, "webhook body exceeds limit"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable body"))
		return
	}
	result, err := h.webhooks.Process(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
