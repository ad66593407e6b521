// Package settlement resolves the pending bets of a draw once its result is
// known.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/metrics"
	"github.com/R3E-Network/lottery_layer/internal/app/services/prizes"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
	"github.com/shopspring/decimal"
)

// PlanSource supplies the prize plan a draw is settled against.
type PlanSource interface {
	GetActivePlan(ctx context.Context, lotteryID string, asOf time.Time) (lottery.PrizePlan, error)
	LockPlan(ctx context.Context, planID string, at time.Time) error
}

// WinnerMarker flags winning combinations in the inventory.
type WinnerMarker interface {
	MarkWinner(ctx context.Context, lot lottery.Lottery, key lottery.CombinationKey, prizeType string, amount decimal.Decimal) error
}

// Crediter pays winnings into a user balance.
type Crediter interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, referenceID string) error
}

// DrawLocker serialises settlement of one draw across processes.
type DrawLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// Report summarises one settlement run.
type Report struct {
	LotteryID      string          `json:"lottery_id"`
	DrawDate       time.Time       `json:"draw_date"`
	PlanID         string          `json:"plan_id"`
	Processed      int             `json:"processed"`
	Won            int             `json:"won"`
	Lost           int             `json:"lost"`
	Played         int             `json:"played"`
	Skipped        int             `json:"skipped"`
	Errors         int             `json:"errors"`
	CreditFailures int             `json:"credit_failures"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
}

// Engine settles draws.
type Engine struct {
	lotteries storage.LotteryStore
	bets      storage.BetStore
	plans     PlanSource
	winners   WinnerMarker
	credit    Crediter
	locker    DrawLocker
	lockTTL   time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithCredit pays winnings through c. Without it winnings are only recorded.
func WithCredit(c Crediter) Option {
	return func(e *Engine) { e.credit = c }
}

// WithDrawLock guards each run with a lock held for at most ttl.
func WithDrawLock(l DrawLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithClock overrides the settlement timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New constructs an engine.
func New(lotteries storage.LotteryStore, bets storage.BetStore, plans PlanSource, winners WinnerMarker, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewDefault("settlement")
	}
	e := &Engine{
		lotteries: lotteries,
		bets:      bets,
		plans:     plans,
		winners:   winners,
		lockTTL:   10 * time.Minute,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settle resolves every pending bet of the result's draw. Running it again
// for the same draw only visits bets that are still pending. A missing or
// invalid prize plan leaves all bets pending and returns a configuration
// error.
func (e *Engine) Settle(ctx context.Context, result lottery.Result) (report Report, err error) {
	start := time.Now()
	report = Report{LotteryID: result.LotteryID, DrawDate: result.DrawDate, TotalPaid: decimal.Zero}

	lot, err := e.lotteries.GetLottery(ctx, result.LotteryID)
	if errors.Is(err, storage.ErrNotFound) {
		return report, apperrors.NotFound("lottery", result.LotteryID)
	}
	if err != nil {
		return report, fmt.Errorf("load lottery %s: %w", result.LotteryID, err)
	}
	defer func() {
		metrics.RecordSettlement(lot.Code, time.Since(start), err == nil)
	}()

	if e.locker != nil {
		lockKey := fmt.Sprintf("settle:%s:%s", lot.ID, result.DrawDate.Format("2006-01-02"))
		release, acquired, lerr := e.locker.Acquire(ctx, lockKey, e.lockTTL)
		if lerr != nil {
			return report, fmt.Errorf("acquire draw lock: %w", lerr)
		}
		if !acquired {
			return report, apperrors.Conflict("SETTLEMENT_IN_PROGRESS", "draw %s of %s is being settled elsewhere", result.DrawDate.Format("2006-01-02"), lot.Code)
		}
		defer release()
	}

	entry := e.log.WithField("lottery", lot.Code).WithField("draw_date", result.DrawDate.Format("2006-01-02"))

	plan, err := e.plans.GetActivePlan(ctx, lot.ID, result.DrawDate)
	if err != nil {
		entry.WithError(err).Error("settlement skipped: no usable prize plan")
		return report, err
	}
	if err = prizes.ValidatePlan(plan, lot); err != nil {
		entry.WithError(err).Error("settlement skipped: invalid prize plan")
		return report, err
	}
	report.PlanID = plan.ID

	e.markWinners(ctx, lot, plan, result)

	pending, err := e.bets.ListPendingBets(ctx, lot.ID, result.DrawDate)
	if err != nil {
		return report, fmt.Errorf("list pending bets: %w", err)
	}

	at := e.now().UTC()
	for _, bet := range pending {
		e.settleBet(ctx, lot, plan, result, bet, at, &report)
	}

	if !plan.Locked() {
		if lerr := e.plans.LockPlan(ctx, plan.ID, at); lerr != nil {
			entry.WithError(lerr).Warn("failed to lock prize plan")
		}
	}

	entry.WithField("processed", report.Processed).
		WithField("won", report.Won).
		WithField("lost", report.Lost).
		WithField("played", report.Played).
		WithField("skipped", report.Skipped).
		WithField("total_paid", report.TotalPaid.String()).
		Info("draw settled")
	return report, nil
}

func (e *Engine) settleBet(ctx context.Context, lot lottery.Lottery, plan lottery.PrizePlan, result lottery.Result, bet lottery.Bet, at time.Time, report *Report) {
	entry := e.log.WithField("bet_id", bet.ID).WithField("lottery", lot.Code)

	details, evalErr := safeEvaluate(lot, plan, result, bet)
	status := lottery.BetLost
	won := decimal.Zero
	switch {
	case evalErr != nil:
		status = lottery.BetPlayed
		details.Error = evalErr.Error()
		entry.WithError(evalErr).Error("bet could not be evaluated; marking as played")
	case len(details.Prizes) > 0:
		status = lottery.BetWon
		won = details.TotalAmount
	}

	moved, err := e.bets.TransitionBet(ctx, bet.ID, status, won, details, at)
	if err != nil {
		report.Errors++
		entry.WithError(err).Error("failed to record bet settlement")
		return
	}
	if !moved {
		report.Skipped++
		return
	}

	report.Processed++
	metrics.RecordSettledBet(lot.Code, string(status))
	switch status {
	case lottery.BetWon:
		report.Won++
		report.TotalPaid = report.TotalPaid.Add(won)
		if e.credit != nil {
			if err := e.credit.Credit(ctx, bet.UserID, won, bet.ID); err != nil {
				report.CreditFailures++
				metrics.RecordCreditFailure()
				entry.WithError(err).WithField("amount", won.String()).Error("failed to credit winnings")
			}
		}
	case lottery.BetLost:
		report.Lost++
	case lottery.BetPlayed:
		report.Played++
	}
}

// safeEvaluate turns a panic in evaluation into a processing error so one
// malformed bet cannot stop the draw.
func safeEvaluate(lot lottery.Lottery, plan lottery.PrizePlan, result lottery.Result, bet lottery.Bet) (details lottery.WinningDetails, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Processing(nil, "evaluate bet %s: %v", bet.ID, r)
		}
	}()
	return Evaluate(lot, plan, result, bet)
}

// markWinners flags the major and seco combinations whether or not anyone bet
// on them. Failures are logged only.
func (e *Engine) markWinners(ctx context.Context, lot lottery.Lottery, plan lottery.PrizePlan, result lottery.Result) {
	if major, ok := prizes.Major(plan); ok {
		if err := e.winners.MarkWinner(ctx, lot, result.MajorKey(), major.Type.Code, major.Amount); err != nil {
			e.log.WithError(err).WithField("lottery", lot.Code).Warn("failed to mark major winner")
		}
	}
	secos := prizes.Secos(plan)
	if len(secos) == 0 {
		return
	}
	for _, s := range result.Secos {
		series := s.Series
		if series == "" {
			series = result.Series
		}
		key := lottery.CombinationKey{LotteryID: lot.ID, Number: s.Number, Series: series, DrawDate: result.DrawDate}
		if err := e.winners.MarkWinner(ctx, lot, key, secos[0].Type.Code, secos[0].Amount); err != nil {
			e.log.WithError(err).WithField("lottery", lot.Code).Warn("failed to mark seco winner")
		}
	}
}
