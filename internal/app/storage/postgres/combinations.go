package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
)

const combinationColumns = `id, lottery_id, number, series, draw_date, total_fractions,
	used_fractions, is_active, is_winner, prize_type, prize_amount, source, created_at, updated_at`

// --- CombinationStore -------------------------------------------------------

// ReserveFractions locks the key's row for the length of the reservation. A
// draw without an uploaded list gets a derived row seeded with the fractions
// pending bets already hold.
func (s *Store) ReserveFractions(ctx context.Context, req storage.ReserveRequest) (storage.ReserveOutcome, error) {
	if req.Fractions <= 0 {
		return storage.ReserveOutcome{}, fmt.Errorf("reserve %s: fractions must be positive", req.Key)
	}

	var out storage.ReserveOutcome
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		c, err := lockCombination(ctx, tx, req.Key)
		if errors.Is(err, sql.ErrNoRows) {
			c, err = s.deriveCombination(ctx, tx, req)
		}
		if errors.Is(err, sql.ErrNoRows) {
			out = storage.ReserveOutcome{Eligible: false}
			return nil
		}
		if err != nil {
			return err
		}

		if !c.Active {
			out = storage.ReserveOutcome{Eligible: false, Combination: c}
			return nil
		}
		if c.UsedFractions+req.Fractions > c.TotalFractions {
			out = storage.ReserveOutcome{Eligible: true, Available: c.Available(), Combination: c}
			return nil
		}

		err = tx.GetContext(ctx, &c, `
			UPDATE combinations
			SET used_fractions = used_fractions + $2, updated_at = $3
			WHERE id = $1
			RETURNING `+combinationColumns, c.ID, req.Fractions, s.now())
		if err != nil {
			return fmt.Errorf("reserve %s: %w", req.Key, err)
		}
		out = storage.ReserveOutcome{Reserved: true, Eligible: true, Available: c.Available(), Combination: c}
		return nil
	})
	if err != nil {
		return storage.ReserveOutcome{}, err
	}
	return out, nil
}

func lockCombination(ctx context.Context, tx *sqlx.Tx, key lottery.CombinationKey) (lottery.Combination, error) {
	var c lottery.Combination
	err := tx.GetContext(ctx, &c, `
		SELECT `+combinationColumns+` FROM combinations
		WHERE lottery_id = $1 AND draw_date = $2 AND number = $3 AND series = $4
		FOR UPDATE
	`, key.LotteryID, day(key.DrawDate), key.Number, key.Series)
	return c, err
}

// deriveCombination inserts a derived row unless the draw has an uploaded
// list, in which case it returns sql.ErrNoRows.
func (s *Store) deriveCombination(ctx context.Context, tx *sqlx.Tx, req storage.ReserveRequest) (lottery.Combination, error) {
	key := req.Key
	var uploaded bool
	err := tx.GetContext(ctx, &uploaded, `
		SELECT EXISTS (SELECT 1 FROM uploaded_inventories WHERE lottery_id = $1 AND draw_date = $2)
	`, key.LotteryID, day(key.DrawDate))
	if err != nil {
		return lottery.Combination{}, err
	}
	if uploaded {
		return lottery.Combination{}, sql.ErrNoRows
	}

	var used int
	err = tx.GetContext(ctx, &used, `
		SELECT COALESCE(SUM(fractions), 0) FROM bets
		WHERE lottery_id = $1 AND draw_date = $2 AND number = $3 AND series = $4 AND status = $5
	`, key.LotteryID, day(key.DrawDate), key.Number, key.Series, lottery.BetPending)
	if err != nil {
		return lottery.Combination{}, err
	}
	if used > req.Capacity {
		used = req.Capacity
	}

	now := s.now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO combinations (id, lottery_id, number, series, draw_date, total_fractions,
			used_fractions, is_active, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9, $9)
		ON CONFLICT (lottery_id, draw_date, number, series) DO NOTHING
	`, uuid.NewString(), key.LotteryID, key.Number, key.Series, day(key.DrawDate),
		req.Capacity, used, lottery.SourceDerived, now)
	if err != nil {
		return lottery.Combination{}, fmt.Errorf("derive %s: %w", key, err)
	}
	return lockCombination(ctx, tx, key)
}

func (s *Store) ReleaseFractions(ctx context.Context, key lottery.CombinationKey, fractions int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE combinations
		SET used_fractions = GREATEST(used_fractions - $5, 0), updated_at = $6
		WHERE lottery_id = $1 AND draw_date = $2 AND number = $3 AND series = $4
	`, key.LotteryID, day(key.DrawDate), key.Number, key.Series, fractions, s.now())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) GetCombination(ctx context.Context, key lottery.CombinationKey) (lottery.Combination, error) {
	var c lottery.Combination
	err := s.db.GetContext(ctx, &c, `
		SELECT `+combinationColumns+` FROM combinations
		WHERE lottery_id = $1 AND draw_date = $2 AND number = $3 AND series = $4
	`, key.LotteryID, day(key.DrawDate), key.Number, key.Series)
	if err != nil {
		return lottery.Combination{}, notFound(err)
	}
	return c, nil
}

func (s *Store) HasUploadedInventory(ctx context.Context, lotteryID string, drawDate time.Time) (bool, error) {
	var uploaded bool
	err := s.db.GetContext(ctx, &uploaded, `
		SELECT EXISTS (SELECT 1 FROM uploaded_inventories WHERE lottery_id = $1 AND draw_date = $2)
	`, lotteryID, day(drawDate))
	return uploaded, err
}

// ReplaceCombinations makes rows the draw's sellable list. Listed rows keep the
// fractions already sold, so a reduced total never drops below them.
func (s *Store) ReplaceCombinations(ctx context.Context, lotteryID string, drawDate time.Time, rows []lottery.Combination) (storage.RefreshStats, error) {
	incoming := make(map[string]lottery.Combination, len(rows))
	for _, c := range rows {
		incoming[c.Number+"|"+c.Series] = c
	}

	var stats storage.RefreshStats
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var existing []lottery.Combination
		err := tx.SelectContext(ctx, &existing, `
			SELECT `+combinationColumns+` FROM combinations
			WHERE lottery_id = $1 AND draw_date = $2
			FOR UPDATE
		`, lotteryID, day(drawDate))
		if err != nil {
			return err
		}

		now := s.now()
		known := make(map[string]lottery.Combination, len(existing))
		for _, c := range existing {
			k := c.Number + "|" + c.Series
			known[k] = c
			if _, keep := incoming[k]; keep || !c.Active {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE combinations SET is_active = FALSE, updated_at = $2 WHERE id = $1
			`, c.ID, now); err != nil {
				return err
			}
			stats.Deactivated++
		}

		for k, c := range incoming {
			if row, ok := known[k]; ok {
				if !row.Active {
					stats.Reactivated++
				}
				if _, err := tx.ExecContext(ctx, `
					UPDATE combinations
					SET is_active = TRUE, source = $2,
						total_fractions = GREATEST($3, used_fractions), updated_at = $4
					WHERE id = $1
				`, row.ID, lottery.SourceUpload, c.TotalFractions, now); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO combinations (id, lottery_id, number, series, draw_date, total_fractions,
					used_fractions, is_active, source, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, 0, TRUE, $7, $8, $8)
			`, uuid.NewString(), lotteryID, c.Number, c.Series, day(drawDate),
				c.TotalFractions, lottery.SourceUpload, now); err != nil {
				return fmt.Errorf("insert %s-%s: %w", c.Number, c.Series, err)
			}
			stats.Inserted++
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO uploaded_inventories (lottery_id, draw_date, uploaded_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (lottery_id, draw_date) DO UPDATE SET uploaded_at = EXCLUDED.uploaded_at
		`, lotteryID, day(drawDate), now)
		return err
	})
	if err != nil {
		return storage.RefreshStats{}, err
	}
	return stats, nil
}

func (s *Store) ListCombinations(ctx context.Context, lotteryID string, drawDate time.Time, series string) ([]lottery.Combination, error) {
	var out []lottery.Combination
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+combinationColumns+` FROM combinations
		WHERE lottery_id = $1 AND draw_date = $2 AND ($3 = '' OR series = $3)
		ORDER BY number, series
	`, lotteryID, day(drawDate), series)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkWinner flags the key's row, creating an inactive result row when the
// combination was never stocked.
func (s *Store) MarkWinner(ctx context.Context, key lottery.CombinationKey, prizeType string, amount decimal.Decimal, capacity int) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO combinations (id, lottery_id, number, series, draw_date, total_fractions,
			used_fractions, is_active, is_winner, prize_type, prize_amount, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, FALSE, TRUE, $7, $8, $9, $10, $10)
		ON CONFLICT (lottery_id, draw_date, number, series) DO UPDATE
		SET is_winner = TRUE, prize_type = EXCLUDED.prize_type,
			prize_amount = EXCLUDED.prize_amount, updated_at = EXCLUDED.updated_at
	`, uuid.NewString(), key.LotteryID, key.Number, key.Series, day(key.DrawDate),
		capacity, prizeType, amount, lottery.SourceResult, now)
	if err != nil {
		return fmt.Errorf("mark winner %s: %w", key, err)
	}
	return nil
}
