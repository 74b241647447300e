package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger memo vocabulary.
const (
	MemoLessonRegistration = "credit deduction after lesson registration"
	MemoLessonCancellation = "credit refund after lesson cancellation"
	MemoPromotedToRegister = "credit deduction after being added to registered list"
	MemoMovedToWaitlist    = "credit refund after being removed to waitlist"
	MemoPurchaseCredit     = "purchase credit"
)

// LedgerEntry is one immutable credit balance transition.
type LedgerEntry struct {
	Seq       int64           `db:"seq" json:"seq"`
	ID        string          `db:"id" json:"id"`
	StudentID string          `db:"student_id" json:"student_id"`
	OldCredit decimal.Decimal `db:"old_credit" json:"old_credit"`
	NewCredit decimal.Decimal `db:"new_credit" json:"new_credit"`
	Memo      string          `db:"memo" json:"memo"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Delta returns new minus old credit.
func (e LedgerEntry) Delta() decimal.Decimal {
	return e.NewCredit.Sub(e.OldCredit)
}

// LedgerVerification reports whether a balance matches its ledger.
type LedgerVerification struct {
	StudentID     string           `json:"student_id"`
	Balance       decimal.Decimal  `json:"balance"`
	LastNewCredit *decimal.Decimal `json:"last_new_credit,omitempty"`
	EntryCount    int              `json:"entry_count"`
	ChainIntact   bool             `json:"chain_intact"`
	Consistent    bool             `json:"consistent"`
	BrokenAtSeq   *int64           `json:"broken_at_seq,omitempty"`
}
