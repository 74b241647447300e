package dto

import "github.com/shopspring/decimal"

// ConfirmPaymentRequest is sent by trusted callers once a checkout succeeded.
type ConfirmPaymentRequest struct {
	StudentID     string          `json:"student_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	ExternalTxnID string          `json:"external_txn_id" validate:"required,max=255"`
}

// WebhookResult acknowledges a provider webhook.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Handled   bool   `json:"handled"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
