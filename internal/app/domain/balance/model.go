// Package balance holds the user wallet entities debited by bet admission and
// credited by settlement.
package balance

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned by debits that would take a balance below zero.
var ErrInsufficientFunds = errors.New("insufficient balance")

// Transaction types.
const (
	TxTypeDeposit = "deposit"
	TxTypeBet     = "bet"
	TxTypeRefund  = "refund"
	TxTypePayout  = "payout"
)

// Account is the spendable balance of one user.
type Account struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Transaction is an append-only ledger entry for a balance movement.
type Transaction struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	TxType       string          `json:"tx_type" db:"tx_type"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after" db:"balance_after"`
	ReferenceID  string          `json:"reference_id" db:"reference_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
