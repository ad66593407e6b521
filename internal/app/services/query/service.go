// Package query serves the read side: what can still be bought, what a bet
// could win, and how past draws settled.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/inventory"
	"github.com/R3E-Network/lottery_layer/internal/app/services/prizes"
	"github.com/R3E-Network/lottery_layer/internal/app/services/settlement"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/shopspring/decimal"
)

// Service answers read-only questions.
type Service struct {
	lotteries storage.LotteryStore
	bets      storage.BetStore
	results   storage.ResultStore
	inventory *inventory.Service
	catalog   *prizes.Catalog
	now       func() time.Time
}

// New constructs the query service.
func New(lotteries storage.LotteryStore, bets storage.BetStore, results storage.ResultStore, inv *inventory.Service, catalog *prizes.Catalog) *Service {
	return &Service{
		lotteries: lotteries,
		bets:      bets,
		results:   results,
		inventory: inv,
		catalog:   catalog,
		now:       time.Now,
	}
}

// Lottery loads one lottery.
func (s *Service) Lottery(ctx context.Context, id string) (lottery.Lottery, error) {
	lot, err := s.lotteries.GetLottery(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return lottery.Lottery{}, apperrors.NotFound("lottery", id)
	}
	if err != nil {
		return lottery.Lottery{}, fmt.Errorf("load lottery %s: %w", id, err)
	}
	return lot, nil
}

// Lotteries lists lotteries, optionally only active ones.
func (s *Service) Lotteries(ctx context.Context, activeOnly bool) ([]lottery.Lottery, error) {
	return s.lotteries.ListLotteries(ctx, activeOnly)
}

// AvailableNumbers lists sellable combinations of a series for the next draw.
func (s *Service) AvailableNumbers(ctx context.Context, lotteryID, series string) ([]inventory.Availability, error) {
	lot, err := s.Lottery(ctx, lotteryID)
	if err != nil {
		return nil, err
	}
	if lot.RequiresSeries && series == "" {
		return nil, apperrors.Validation("series is required")
	}
	if series != "" {
		series = lottery.PadDigits(series, lot.SeriesWidthOrDefault())
	}
	return s.inventory.ListAvailable(ctx, lot, series, lot.DrawDateAt(s.now()))
}

// PotentialPrize is one prize a bet could win.
type PotentialPrize struct {
	Kind        lottery.PrizeKind `json:"kind"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Amount      decimal.Decimal   `json:"amount"`
}

// BetSummary previews a bet before it is placed.
type BetSummary struct {
	LotteryID       string           `json:"lottery_id"`
	LotteryCode     string           `json:"lottery_code"`
	Number          string           `json:"number"`
	Series          string           `json:"series"`
	Fractions       int              `json:"fractions"`
	Amount          decimal.Decimal  `json:"amount"`
	DrawDate        time.Time        `json:"draw_date"`
	DrawNumber      int              `json:"draw_number"`
	DaysUntilDraw   int              `json:"days_until_draw"`
	BettingOpen     bool             `json:"betting_open"`
	Available       int              `json:"available_fractions"`
	PotentialPrizes []PotentialPrize `json:"potential_prizes"`
}

// Summary previews what number and series would cost and could win at the
// given fraction count.
func (s *Service) Summary(ctx context.Context, lotteryID, number, series string, fractions int) (BetSummary, error) {
	lot, err := s.Lottery(ctx, lotteryID)
	if err != nil {
		return BetSummary{}, err
	}
	if fractions < 1 {
		return BetSummary{}, apperrors.Validation("fractions must be at least 1")
	}
	now := s.now()
	drawDate := lot.DrawDateAt(now)
	number = lottery.PadDigits(number, lot.NumberWidth())
	if series != "" {
		series = lottery.PadDigits(series, lot.SeriesWidthOrDefault())
	}
	key := lottery.CombinationKey{LotteryID: lot.ID, Number: number, Series: series, DrawDate: drawDate}
	available, err := s.inventory.AvailableFractions(ctx, lot, key)
	if err != nil {
		return BetSummary{}, err
	}

	summary := BetSummary{
		LotteryID:     lot.ID,
		LotteryCode:   lot.Code,
		Number:        number,
		Series:        series,
		Fractions:     fractions,
		Amount:        lot.ExpectedAmount(fractions),
		DrawDate:      drawDate,
		DrawNumber:    lot.LastDrawNumber + 1,
		DaysUntilDraw: lot.DaysUntilNextDraw(now),
		BettingOpen:   lot.Active && lot.BettingOpen(now),
		Available:     available,
	}

	plan, err := s.catalog.GetActivePlan(ctx, lot.ID, drawDate)
	if apperrors.IsKind(err, apperrors.KindConfiguration) {
		return summary, nil
	}
	if err != nil {
		return BetSummary{}, err
	}
	width := lot.NumberWidth()
	if major, ok := prizes.Major(plan); ok {
		summary.PotentialPrizes = append(summary.PotentialPrizes, PotentialPrize{
			Kind:        lottery.KindMajor,
			Name:        major.DisplayName(),
			Description: "Full number",
			Amount:      major.Payout(fractions, lot.FractionCount),
		})
	}
	for _, same := range []bool{true, false} {
		for _, p := range prizes.Approximations(plan, same) {
			positions, _ := p.Type.Rule.ResolvedPositions(width)
			summary.PotentialPrizes = append(summary.PotentialPrizes, PotentialPrize{
				Kind:        p.Type.Kind,
				Name:        p.DisplayName(),
				Description: settlement.DescribePositions(positions, width),
				Amount:      p.Payout(fractions, lot.FractionCount),
			})
		}
	}
	return summary, nil
}

// DrawReport is the settlement outcome of one draw.
type DrawReport struct {
	Result    lottery.Result            `json:"result"`
	Counts    map[lottery.BetStatus]int `json:"counts"`
	Winners   []lottery.Bet             `json:"winners"`
	TotalPaid decimal.Decimal           `json:"total_paid"`
}

// DrawResults reports how the bets of one draw were settled.
func (s *Service) DrawResults(ctx context.Context, lotteryID string, drawDate time.Time) (DrawReport, error) {
	drawDate = lottery.DateOf(drawDate)
	result, err := s.results.GetResult(ctx, lotteryID, drawDate)
	if errors.Is(err, storage.ErrNotFound) {
		return DrawReport{}, apperrors.NotFound("result", fmt.Sprintf("%s@%s", lotteryID, drawDate.Format("2006-01-02")))
	}
	if err != nil {
		return DrawReport{}, fmt.Errorf("load result: %w", err)
	}
	bets, err := s.bets.ListBets(ctx, lottery.BetFilter{LotteryID: lotteryID, DrawDate: &drawDate})
	if err != nil {
		return DrawReport{}, fmt.Errorf("list bets: %w", err)
	}

	report := DrawReport{Result: result, Counts: map[lottery.BetStatus]int{}, TotalPaid: decimal.Zero}
	for _, b := range bets {
		report.Counts[b.Status]++
		if b.Status == lottery.BetWon {
			report.Winners = append(report.Winners, b)
			report.TotalPaid = report.TotalPaid.Add(b.WonAmount)
		}
	}
	return report, nil
}

// LastResults returns the most recent results of a lottery, newest first.
func (s *Service) LastResults(ctx context.Context, lotteryID string, limit int) ([]lottery.Result, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.results.ListResults(ctx, lotteryID, limit)
}

// History lists a user's bets.
func (s *Service) History(ctx context.Context, filter lottery.BetFilter) ([]lottery.Bet, error) {
	if filter.UserID == "" {
		return nil, apperrors.Validation("user id is required")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.bets.ListBets(ctx, filter)
}

// Bet loads one of the user's bets.
func (s *Service) Bet(ctx context.Context, userID, id string) (lottery.Bet, error) {
	b, err := s.bets.GetBet(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && b.UserID != userID) {
		return lottery.Bet{}, apperrors.NotFound("bet", id)
	}
	if err != nil {
		return lottery.Bet{}, fmt.Errorf("load bet %s: %w", id, err)
	}
	return b, nil
}
