package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

const lotteryColumns = `id, code, name, draw_day, draw_time, closing_time, time_zone,
	fraction_count, fraction_price, major_prize_amount, min_bet_amount, max_bet_amount,
	max_fractions_per_bet, number_range_start, number_range_end, series_width,
	requires_series, available_series, allow_duplicate_numbers, is_active,
	last_draw_number, next_draw_date, created_at, updated_at`

// --- LotteryStore -----------------------------------------------------------

func (s *Store) CreateLottery(ctx context.Context, l lottery.Lottery) (lottery.Lottery, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := s.now()
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lotteries (`+lotteryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)
	`, l.ID, l.Code, l.Name, int(l.DrawDay), l.DrawTime, l.Closing(), l.TimeZone,
		l.FractionCount, l.FractionPrice, l.MajorPrizeAmount, l.MinBetAmount, l.MaxBetAmount,
		l.MaxFractionsPerBet, l.NumberRangeStart, l.NumberRangeEnd, l.SeriesWidth,
		l.RequiresSeries, l.AvailableSeries, l.AllowDuplicateNumbers, l.Active,
		l.LastDrawNumber, dayPtr(l.NextDrawDate), l.CreatedAt, l.UpdatedAt)
	if isUniqueViolation(err) {
		return lottery.Lottery{}, fmt.Errorf("lottery %s (%s) already exists", l.ID, l.Code)
	}
	if err != nil {
		return lottery.Lottery{}, err
	}
	return l, nil
}

func (s *Store) UpdateLottery(ctx context.Context, l lottery.Lottery) (lottery.Lottery, error) {
	l.UpdatedAt = s.now()
	err := s.db.QueryRowxContext(ctx, `
		UPDATE lotteries
		SET code = $2, name = $3, draw_day = $4, draw_time = $5, closing_time = $6,
			time_zone = $7, fraction_count = $8, fraction_price = $9, major_prize_amount = $10,
			min_bet_amount = $11, max_bet_amount = $12, max_fractions_per_bet = $13,
			number_range_start = $14, number_range_end = $15, series_width = $16,
			requires_series = $17, available_series = $18, allow_duplicate_numbers = $19,
			is_active = $20, last_draw_number = $21, next_draw_date = $22, updated_at = $23
		WHERE id = $1
		RETURNING created_at
	`, l.ID, l.Code, l.Name, int(l.DrawDay), l.DrawTime, l.Closing(),
		l.TimeZone, l.FractionCount, l.FractionPrice, l.MajorPrizeAmount,
		l.MinBetAmount, l.MaxBetAmount, l.MaxFractionsPerBet,
		l.NumberRangeStart, l.NumberRangeEnd, l.SeriesWidth,
		l.RequiresSeries, l.AvailableSeries, l.AllowDuplicateNumbers,
		l.Active, l.LastDrawNumber, dayPtr(l.NextDrawDate), l.UpdatedAt).Scan(&l.CreatedAt)
	if err != nil {
		return lottery.Lottery{}, notFound(err)
	}
	return l, nil
}

func (s *Store) GetLottery(ctx context.Context, id string) (lottery.Lottery, error) {
	var l lottery.Lottery
	err := s.db.GetContext(ctx, &l, `SELECT `+lotteryColumns+` FROM lotteries WHERE id = $1`, id)
	if err != nil {
		return lottery.Lottery{}, notFound(err)
	}
	return l, nil
}

func (s *Store) GetLotteryByCode(ctx context.Context, code string) (lottery.Lottery, error) {
	var l lottery.Lottery
	err := s.db.GetContext(ctx, &l, `SELECT `+lotteryColumns+` FROM lotteries WHERE LOWER(code) = LOWER($1)`, code)
	if err != nil {
		return lottery.Lottery{}, notFound(err)
	}
	return l, nil
}

func (s *Store) ListLotteries(ctx context.Context, activeOnly bool) ([]lottery.Lottery, error) {
	var out []lottery.Lottery
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+lotteryColumns+` FROM lotteries
		WHERE NOT $1 OR is_active
		ORDER BY code
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	return out, nil
}
