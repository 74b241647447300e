package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/noah-isme/lessonbook-api/internal/dto"
	"github.com/noah-isme/lessonbook-api/internal/models"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

const (
	stripeEventCheckoutCompleted     = "checkout.session.completed"
	stripeEventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	stripeMetadataStudentID          = "student_id"
)

type paymentConfirmer interface {
	Confirm(ctx context.Context, req dto.ConfirmPaymentRequest) (*models.PaymentReceipt, error)
}

// StripeWebhookService turns completed Stripe checkouts into credit purchases.
type StripeWebhookService struct {
	payments paymentConfirmer
	secret   string
	logger   *zap.Logger
}

// NewStripeWebhookService constructs the webhook service. An empty secret disables it.
func NewStripeWebhookService(payments paymentConfirmer, secret string, logger *zap.Logger) *StripeWebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeWebhookService{payments: payments, secret: secret, logger: logger}
}

// Process verifies the Stripe-Signature header and applies paid checkout sessions.
// Delayed payment methods arrive as an unpaid checkout.session.completed followed by
// checkout.session.async_payment_succeeded; both credit through Confirm keyed by the
// session id. Other event types are acknowledged without effect.
func (s *StripeWebhookService) Process(ctx context.Context, payload []byte, signature string) (*dto.WebhookResult, error) {
	if s.secret == "" {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "stripe webhook is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.logger.Warn("stripe webhook signature rejected", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid webhook signature")
	}

	result := &dto.WebhookResult{EventID: event.ID, EventType: string(event.Type)}
	switch string(event.Type) {
	case stripeEventCheckoutCompleted, stripeEventAsyncPaymentSucceeded:
	default:
		s.logger.Debug("stripe event ignored", zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))
		return result, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed checkout session")
	}
	if session.PaymentStatus != "" && session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		s.logger.Info("checkout session not paid yet", zap.String("session_id", session.ID), zap.String("payment_status", string(session.PaymentStatus)))
		return result, nil
	}
	studentID := session.Metadata[stripeMetadataStudentID]
	if studentID == "" || session.AmountTotal <= 0 {
		s.logger.Warn("checkout session missing student or amount",
			zap.String("session_id", session.ID),
			zap.Int64("amount_total", session.AmountTotal),
		)
		return result, nil
	}

	receipt, err := s.payments.Confirm(ctx, dto.ConfirmPaymentRequest{
		StudentID:     studentID,
		Amount:        minorUnitsToAmount(session.AmountTotal),
		ExternalTxnID: session.ID,
	})
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
			s.logger.Warn("checkout session for unknown student", zap.String("session_id", session.ID), zap.String("student_id", studentID))
			return result, nil
		}
		return nil, fmt.Errorf("confirm checkout session %s: %w", session.ID, err)
	}

	result.Handled = true
	result.Duplicate = receipt.Duplicate
	return result, nil
}
