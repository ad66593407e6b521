package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/balance"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type balanceRow struct {
	mu   sync.Mutex
	acct balance.Account
}

// BalanceStore implementation -------------------------------------------------

func (s *Store) GetBalance(_ context.Context, userID string) (balance.Account, error) {
	s.balanceMu.RLock()
	row, ok := s.balances[userID]
	s.balanceMu.RUnlock()
	if !ok {
		return balance.Account{}, storage.ErrNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	return row.acct, nil
}

func (s *Store) AdjustBalance(_ context.Context, userID string, delta decimal.Decimal) (balance.Account, error) {
	s.balanceMu.RLock()
	row, ok := s.balances[userID]
	s.balanceMu.RUnlock()
	if !ok {
		if delta.IsNegative() {
			return balance.Account{}, fmt.Errorf("%w: available 0, required %s", balance.ErrInsufficientFunds, delta.Neg())
		}
		s.balanceMu.Lock()
		if row, ok = s.balances[userID]; !ok {
			now := s.now()
			row = &balanceRow{acct: balance.Account{UserID: userID, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}}
			s.balances[userID] = row
		}
		s.balanceMu.Unlock()
	}

	row.mu.Lock()
	defer row.mu.Unlock()
	next := row.acct.Balance.Add(delta)
	if next.IsNegative() {
		return row.acct, fmt.Errorf("%w: available %s, required %s", balance.ErrInsufficientFunds, row.acct.Balance, delta.Neg())
	}
	row.acct.Balance = next
	row.acct.UpdatedAt = s.now()
	return row.acct, nil
}

func (s *Store) CreateBalanceTransaction(_ context.Context, tx balance.Transaction) (balance.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	s.txs[tx.UserID] = append(s.txs[tx.UserID], tx)
	return tx, nil
}

func (s *Store) ListBalanceTransactions(_ context.Context, userID string, limit int) ([]balance.Transaction, error) {
	s.txMu.RLock()
	defer s.txMu.RUnlock()

	all := s.txs[userID]
	out := make([]balance.Transaction, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
