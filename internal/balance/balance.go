// Package balance provides the wallet operations used by bet admission and
// settlement.
//
// Money Flow:
// 1. Funds are deposited into the user's balance
// 2. Admission debits the full batch amount once all fractions are reserved
// 3. If persisting the batch fails, the debit is refunded
// 4. Settlement credits winnings when payout crediting is enabled
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/balance"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidAmount rejects zero or negative movements.
var ErrInvalidAmount = errors.New("amount must be positive")

// Manager handles all balance operations. Each movement is a single atomic
// store adjustment keyed by user, followed by a ledger entry.
type Manager struct {
	store storage.BalanceStore
	log   *logger.Logger
}

// NewManager creates a new balance manager.
func NewManager(store storage.BalanceStore, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("balance")
	}
	return &Manager{store: store, log: log}
}

// =============================================================================
// Core Balance Operations
// =============================================================================

// Available returns the spendable balance. Unknown users have zero.
func (m *Manager) Available(ctx context.Context, userID string) (decimal.Decimal, error) {
	acct, err := m.store.GetBalance(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

// Deposit adds funds to a user's account.
func (m *Manager) Deposit(ctx context.Context, userID string, amount decimal.Decimal, referenceID string) (balance.Account, error) {
	return m.apply(ctx, userID, amount, balance.TxTypeDeposit, referenceID)
}

// Debit removes funds, failing with balance.ErrInsufficientFunds rather than
// overdrawing.
func (m *Manager) Debit(ctx context.Context, userID string, amount decimal.Decimal, referenceID string) error {
	_, err := m.apply(ctx, userID, amount.Neg(), balance.TxTypeBet, referenceID)
	return err
}

// Refund returns a previous debit.
func (m *Manager) Refund(ctx context.Context, userID string, amount decimal.Decimal, referenceID string) error {
	_, err := m.apply(ctx, userID, amount, balance.TxTypeRefund, referenceID)
	return err
}

// Credit pays winnings.
func (m *Manager) Credit(ctx context.Context, userID string, amount decimal.Decimal, referenceID string) error {
	_, err := m.apply(ctx, userID, amount, balance.TxTypePayout, referenceID)
	return err
}

// GetTransactions returns recent transactions for a user.
func (m *Manager) GetTransactions(ctx context.Context, userID string, limit int) ([]balance.Transaction, error) {
	return m.store.ListBalanceTransactions(ctx, userID, limit)
}

func (m *Manager) apply(ctx context.Context, userID string, delta decimal.Decimal, txType, referenceID string) (balance.Account, error) {
	if delta.IsZero() || (txType != balance.TxTypeBet && delta.IsNegative()) {
		return balance.Account{}, ErrInvalidAmount
	}
	if txType == balance.TxTypeBet && !delta.IsNegative() {
		return balance.Account{}, ErrInvalidAmount
	}

	acct, err := m.store.AdjustBalance(ctx, userID, delta)
	if err != nil {
		return balance.Account{}, fmt.Errorf("%s %s: %w", txType, userID, err)
	}

	if _, err := m.store.CreateBalanceTransaction(ctx, balance.Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		TxType:       txType,
		Amount:       delta,
		BalanceAfter: acct.Balance,
		ReferenceID:  referenceID,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		// The movement itself has been applied; the ledger entry is best effort.
		m.log.WithError(err).
			WithField("user_id", userID).
			WithField("tx_type", txType).
			Warn("record balance transaction")
	}
	return acct, nil
}
