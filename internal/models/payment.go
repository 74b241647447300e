package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is the receipt of an external credit purchase. The ledger, not this
// table, is the source of truth for balances.
type Payment struct {
	ID            string          `db:"id" json:"id"`
	StudentID     string          `db:"student_id" json:"student_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	ExternalTxnID string          `db:"external_txn_id" json:"external_txn_id"`
	LedgerEntryID string          `db:"ledger_entry_id" json:"ledger_entry_id"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// PaymentReceipt is returned by payment confirmation. Duplicate is set when the
// external transaction had already been applied.
type PaymentReceipt struct {
	Payment     Payment     `json:"payment"`
	LedgerEntry LedgerEntry `json:"ledger_entry"`
	Duplicate   bool        `json:"duplicate"`
}
