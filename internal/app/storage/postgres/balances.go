package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/balance"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
)

const (
	accountColumns     = `user_id, balance, created_at, updated_at`
	transactionColumns = `id, user_id, tx_type, amount, balance_after, reference_id, created_at`
)

// --- BalanceStore -----------------------------------------------------------

func (s *Store) GetBalance(ctx context.Context, userID string) (balance.Account, error) {
	var acct balance.Account
	if err := s.db.GetContext(ctx, &acct, `SELECT `+accountColumns+` FROM balances WHERE user_id = $1`, userID); err != nil {
		return balance.Account{}, notFound(err)
	}
	return acct, nil
}

// AdjustBalance credits with an upsert and debits with a guarded update, so a
// debit never takes the balance below zero.
func (s *Store) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (balance.Account, error) {
	now := s.now()
	var acct balance.Account
	if !delta.IsNegative() {
		err := s.db.GetContext(ctx, &acct, `
			INSERT INTO balances (user_id, balance, created_at, updated_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (user_id) DO UPDATE
			SET balance = balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
			RETURNING `+accountColumns, userID, delta, now)
		return acct, err
	}

	err := s.db.GetContext(ctx, &acct, `
		UPDATE balances SET balance = balance + $2, updated_at = $3
		WHERE user_id = $1 AND balance + $2 >= 0
		RETURNING `+accountColumns, userID, delta, now)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return balance.Account{}, err
	}

	current, err := s.GetBalance(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return balance.Account{}, err
	}
	available := decimal.Zero
	if err == nil {
		available = current.Balance
	}
	return current, fmt.Errorf("%w: available %s, required %s", balance.ErrInsufficientFunds, available, delta.Neg())
}

func (s *Store) CreateBalanceTransaction(ctx context.Context, tx balance.Transaction) (balance.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tx.ID, tx.UserID, tx.TxType, tx.Amount, tx.BalanceAfter, tx.ReferenceID, tx.CreatedAt)
	if err != nil {
		return balance.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) ListBalanceTransactions(ctx context.Context, userID string, limit int) ([]balance.Transaction, error) {
	var out []balance.Transaction
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+transactionColumns+` FROM balance_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)
	`, userID, max(limit, 0))
	if err != nil {
		return nil, err
	}
	return out, nil
}
