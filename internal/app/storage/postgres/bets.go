package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

const betColumns = `id, lottery_id, user_id, batch_id, number, series, fractions, amount,
	draw_date, status, won_amount, winning_details, created_at, updated_at, settled_at`

// --- BetStore ---------------------------------------------------------------

func (s *Store) CreateBets(ctx context.Context, bets []lottery.Bet) ([]lottery.Bet, error) {
	now := s.now()
	out := make([]lottery.Bet, len(bets))
	seen := make(map[string]struct{}, len(bets))
	for i, b := range bets {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("bet %s repeated in batch", b.ID)
		}
		seen[b.ID] = struct{}{}
		if b.Status == "" {
			b.Status = lottery.BetPending
		}
		b.CreatedAt = now
		b.UpdatedAt = now
		out[i] = b
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO bets (`+betColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range out {
			_, err := stmt.ExecContext(ctx, b.ID, b.LotteryID, b.UserID, b.BatchID, b.Number, b.Series,
				b.Fractions, b.Amount, day(b.DrawDate), b.Status, b.WonAmount, b.Details,
				b.CreatedAt, b.UpdatedAt, b.SettledAt)
			if isUniqueViolation(err) {
				return fmt.Errorf("bet %s already exists", b.ID)
			}
			if err != nil {
				return fmt.Errorf("insert bet %s: %w", b.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetBet(ctx context.Context, id string) (lottery.Bet, error) {
	var b lottery.Bet
	if err := s.db.GetContext(ctx, &b, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id); err != nil {
		return lottery.Bet{}, notFound(err)
	}
	return b, nil
}

func (s *Store) ListBets(ctx context.Context, filter lottery.BetFilter) ([]lottery.Bet, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.LotteryID != "" {
		add("lottery_id = $%d", filter.LotteryID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.DrawDate != nil {
		add("draw_date = $%d", day(*filter.DrawDate))
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at <= $%d", *filter.To)
	}

	query := `SELECT ` + betColumns + ` FROM bets`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	var out []lottery.Bet
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListPendingBets(ctx context.Context, lotteryID string, drawDate time.Time) ([]lottery.Bet, error) {
	var out []lottery.Bet
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+betColumns+` FROM bets
		WHERE lottery_id = $1 AND draw_date = $2 AND status = $3
		ORDER BY created_at, id
	`, lotteryID, day(drawDate), lottery.BetPending)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SumPendingFractions(ctx context.Context, key lottery.CombinationKey) (int, error) {
	var total int
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(fractions), 0) FROM bets
		WHERE lottery_id = $1 AND draw_date = $2 AND number = $3 AND series = $4 AND status = $5
	`, key.LotteryID, day(key.DrawDate), key.Number, key.Series, lottery.BetPending)
	return total, err
}

func (s *Store) HasPendingNumber(ctx context.Context, lotteryID string, drawDate time.Time, number, excludeSeries string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM bets
			WHERE lottery_id = $1 AND draw_date = $2 AND number = $3 AND series <> $4 AND status = $5
		)
	`, lotteryID, day(drawDate), number, excludeSeries, lottery.BetPending)
	return exists, err
}

// TransitionBet relies on the status guard in the WHERE clause so concurrent
// settlers move a bet at most once.
func (s *Store) TransitionBet(ctx context.Context, id string, to lottery.BetStatus, won decimal.Decimal, details lottery.WinningDetails, at time.Time) (bool, error) {
	if !lottery.BetPending.CanTransition(to) {
		if _, err := s.GetBet(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bets
		SET status = $2, won_amount = $3, winning_details = $4, settled_at = $5, updated_at = $5
		WHERE id = $1 AND status = $6
	`, id, to, won, details, at, lottery.BetPending)
	if err != nil {
		return false, fmt.Errorf("transition bet %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetBet(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
