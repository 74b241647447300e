package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Student is a learner holding prepaid lesson credit.
type Student struct {
	ID            string          `db:"id" json:"id"`
	Username      string          `db:"username" json:"username"`
	FullName      string          `db:"full_name" json:"full_name"`
	Email         string          `db:"email" json:"email"`
	PasswordHash  string          `db:"password_hash" json:"-"`
	CreditBalance decimal.Decimal `db:"credit_balance" json:"credit_balance"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}
