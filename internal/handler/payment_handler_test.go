package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lessonbook-api/internal/dto"
	"github.com/noah-isme/lessonbook-api/internal/models"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

type paymentServiceMock struct {
	req dto.ConfirmPaymentRequest
	err error
}

func (m *paymentServiceMock) Confirm(ctx context.Context, req dto.ConfirmPaymentRequest) (*models.PaymentReceipt, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.PaymentReceipt{Payment: models.Payment{StudentID: req.StudentID, Amount: req.Amount}}, nil
}

type webhookMock struct {
	payload   []byte
	signature string
	err       error
}

func (m *webhookMock) Process(ctx context.Context, payload []byte, signature string) (*dto.WebhookResult, error) {
	m.payload = payload
	m.signature = signature
	if m.err != nil {
		return nil, m.err
	}
	return &dto.WebhookResult{EventID: "evt_1", Handled: true}, nil
}

func TestPaymentHandlerConfirm(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentServiceMock{}
	h := NewPaymentHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodPost, "/payments/confirm", []byte(`{"student_id":"s1","amount":"25.00","external_txn_id":"txn_1"}`))
	h.Confirm(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", mockSvc.req.StudentID)
	assert.True(t, mockSvc.req.Amount.Equal(decimal.RequireFromString("25")))
	assert.Equal(t, "txn_1", mockSvc.req.ExternalTxnID)

	mockSvc.err = appErrors.Clone(appErrors.ErrConflict, "payment already recorded")
	c, w = newGinContext(http.MethodPost, "/payments/confirm", []byte(`{"student_id":"s2","amount":"25.00","external_txn_id":"txn_1"}`))
	h.Confirm(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestPaymentHandlerStripeWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hooks := &webhookMock{}
	h := NewPaymentHandler(&paymentServiceMock{}, hooks)

	c, w := newGinContext(http.MethodPost, "/payments/stripe/webhook", []byte(`{"id":"evt_1"}`))
	c.Request.Header.Set("Stripe-Signature", "t=1,v1=abc")
	h.StripeWebhook(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"id":"evt_1"}`, string(hooks.payload))
	assert.Equal(t, "t=1,v1=abc", hooks.signature)

	hooks.err = appErrors.Wrap(errors.New("bad sig"), appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid webhook signature")
	c, w = newGinContext(http.MethodPost, "/payments/stripe/webhook", []byte(`{}`))
	h.StripeWebhook(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaymentHandlerStripeWebhookBodyTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hooks := &webhookMock{}
	h := NewPaymentHandler(&paymentServiceMock{}, hooks)

	c, w := newGinContext(http.MethodPost, "/payments/stripe/webhook", bytes.Repeat([]byte("a"), maxWebhookBody+1))
	c.Request.Header.Set("Stripe-Signature", "t=1,v1=abc")
	h.StripeWebhook(c)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, decodeEnvelope(t, w).Error.Code)
	assert.Nil(t, hooks.payload)
}

func TestPaymentHandlerStripeWebhookDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewPaymentHandler(&paymentServiceMock{}, nil)

	c, w := newGinContext(http.MethodPost, "/payments/stripe/webhook", []byte(`{}`))
	h.StripeWebhook(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
