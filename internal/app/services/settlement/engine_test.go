package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/inventory"
	"github.com/R3E-Network/lottery_layer/internal/app/services/prizes"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/memory"
	"github.com/R3E-Network/lottery_layer/internal/balance"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
	"github.com/R3E-Network/lottery_layer/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var drawDate = time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	catalog  *prizes.Catalog
	winners  *inventory.Service
	balances *balance.Manager
	lot      lottery.Lottery
}

func newFixture(t *testing.T, withPlan bool) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	log := logger.NewNop()

	lot := lottery.Lottery{
		ID:              "lot-1",
		Code:            "BOG",
		DrawDay:         time.Friday,
		TimeZone:        "UTC",
		FractionCount:   3,
		FractionPrice:   decimal.NewFromInt(1000),
		RequiresSeries:  true,
		AvailableSeries: lottery.SeriesSet{"001", "007", "099"},
		Active:          true,
	}
	lot.Normalize()
	lot, err := store.CreateLottery(ctx, lot)
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		catalog:  prizes.New(store, log),
		winners:  inventory.New(store, store, log),
		balances: balance.NewManager(store, log),
		lot:      lot,
	}
	if withPlan {
		_, err = f.catalog.CreatePlan(ctx, lot, testPlan(lot))
		require.NoError(t, err)
	}
	return f
}

func testPlan(lot lottery.Lottery) lottery.PrizePlan {
	n := lot.FractionCount
	pt := func(code string, kind lottery.PrizeKind, rule lottery.MatchRule) lottery.PrizeType {
		return lottery.PrizeType{Code: code, Kind: kind, Rule: rule}
	}
	return lottery.PrizePlan{
		Name:      "weekly",
		StartDate: drawDate.AddDate(0, -1, 0),
		Active:    true,
		Prizes: []lottery.Prize{
			prizes.NewPrize(pt("MAJOR", lottery.KindMajor, lottery.MatchRule{}), "Mayor", decimal.NewFromInt(900), n),
			prizes.NewPrize(pt("SECO", lottery.KindSeco, lottery.MatchRule{}), "Seco", decimal.NewFromInt(600), n),
			prizes.NewPrize(pt("FIRST_THREE", lottery.KindApproxSameSeries, lottery.MatchRule{Pattern: lottery.PatternFirstThree}), "", decimal.NewFromInt(150), n),
			prizes.NewPrize(pt("LAST_TWO", lottery.KindApproxSameSeries, lottery.MatchRule{Pattern: lottery.PatternLastTwo}), "", decimal.NewFromInt(60), n),
			prizes.NewPrize(pt("FULL_OTHER_SERIES", lottery.KindApproxDiffSeries, lottery.MatchRule{Positions: []int{0, 1, 2, 3}}), "", decimal.NewFromInt(90), n),
			prizes.NewPrize(pt("LAST_THREE_OTHER_SERIES", lottery.KindApproxDiffSeries, lottery.MatchRule{Pattern: lottery.PatternLastThree}), "", decimal.NewFromInt(30), n),
			prizes.NewPrize(pt("NEXT", lottery.KindSpecial, lottery.MatchRule{Special: lottery.SpecialNext}), "", decimal.NewFromInt(20), n),
		},
	}
}

func (f *fixture) engine(opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return drawDate.Add(22 * time.Hour) })}, opts...)
	return New(f.store, f.store, f.catalog, f.winners, logger.NewNop(), opts...)
}

func (f *fixture) bet(t *testing.T, user, number, series string, fractions int) lottery.Bet {
	t.Helper()
	created, err := f.store.CreateBets(context.Background(), []lottery.Bet{{
		LotteryID: f.lot.ID,
		UserID:    user,
		Number:    number,
		Series:    series,
		Fractions: fractions,
		Amount:    f.lot.ExpectedAmount(fractions),
		DrawDate:  drawDate,
	}})
	require.NoError(t, err)
	return created[0]
}

func (f *fixture) reload(t *testing.T, b lottery.Bet) lottery.Bet {
	t.Helper()
	got, err := f.store.GetBet(context.Background(), b.ID)
	require.NoError(t, err)
	return got
}

func result(secos ...lottery.SecoPrize) lottery.Result {
	return lottery.Result{LotteryID: "lot-1", DrawDate: drawDate, Number: "4321", Series: "007", Secos: secos}
}

func TestMajorPrizeScenario(t *testing.T) {
	f := newFixture(t, true)
	b := f.bet(t, "alice", "4321", "007", 1)

	report, err := f.engine().Settle(context.Background(), result())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Won)

	got := f.reload(t, b)
	assert.Equal(t, lottery.BetWon, got.Status)
	assert.True(t, got.WonAmount.Equal(decimal.NewFromInt(300)), got.WonAmount.String())
	assert.Equal(t, []lottery.PrizeKind{lottery.KindMajor}, got.Details.Matched)
	require.NotNil(t, got.SettledAt)
}

func TestOtherSeriesFullMatchIsApproximation(t *testing.T) {
	f := newFixture(t, true)
	b := f.bet(t, "alice", "4321", "099", 1)

	_, err := f.engine().Settle(context.Background(), result())
	require.NoError(t, err)

	got := f.reload(t, b)
	assert.Equal(t, lottery.BetWon, got.Status)
	assert.Equal(t, []lottery.PrizeKind{lottery.KindApproxDiffSeries}, got.Details.Matched)
	require.Len(t, got.Details.Prizes, 1)
	assert.Equal(t, "FULL_OTHER_SERIES", got.Details.Prizes[0].Code)
	assert.Equal(t, "Full number", got.Details.Prizes[0].Description)
	assert.True(t, got.WonAmount.Equal(decimal.NewFromInt(30)))
}

func TestCascadeOutcomes(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	bestApprox := f.bet(t, "alice", "4329", "007", 3)
	stacked := f.bet(t, "bob", "4322", "007", 3)
	seco := f.bet(t, "carol", "5555", "007", 1)
	anySeriesSeco := f.bet(t, "carol", "7777", "001", 1)
	loser := f.bet(t, "dave", "0000", "001", 2)
	broken := f.bet(t, "erin", "12", "007", 1)

	res := result(
		lottery.SecoPrize{Number: "5555", Series: "007"},
		lottery.SecoPrize{Number: "7777", Label: "A"},
	)
	report, err := f.engine().Settle(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Processed)
	assert.Equal(t, 4, report.Won)
	assert.Equal(t, 1, report.Lost)
	assert.Equal(t, 1, report.Played)

	got := f.reload(t, bestApprox)
	assert.Equal(t, []lottery.PrizeKind{lottery.KindApproxSameSeries}, got.Details.Matched)
	assert.Equal(t, "First three", got.Details.Prizes[0].Description)
	assert.True(t, got.WonAmount.Equal(decimal.NewFromInt(150)), "full ticket pays the full amount")

	got = f.reload(t, stacked)
	assert.Equal(t, []lottery.PrizeKind{lottery.KindApproxSameSeries, lottery.KindSpecial}, got.Details.Matched)
	assert.True(t, got.WonAmount.Equal(decimal.NewFromInt(170)), got.WonAmount.String())

	got = f.reload(t, seco)
	assert.Equal(t, []lottery.PrizeKind{lottery.KindSeco}, got.Details.Matched)
	assert.True(t, got.WonAmount.Equal(decimal.NewFromInt(200)))

	got = f.reload(t, anySeriesSeco)
	assert.Equal(t, []lottery.PrizeKind{lottery.KindSeco}, got.Details.Matched)
	assert.Equal(t, "Seco A", got.Details.Prizes[0].Description)

	got = f.reload(t, loser)
	assert.Equal(t, lottery.BetLost, got.Status)
	assert.True(t, got.WonAmount.IsZero())

	got = f.reload(t, broken)
	assert.Equal(t, lottery.BetPlayed, got.Status)
	assert.NotEmpty(t, got.Details.Error)
}

func TestWinnerFlagsWithoutBets(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.engine().Settle(ctx, result(lottery.SecoPrize{Number: "5555", Series: "001"}))
	require.NoError(t, err)

	major, err := f.store.GetCombination(ctx, lottery.CombinationKey{LotteryID: "lot-1", Number: "4321", Series: "007", DrawDate: drawDate})
	require.NoError(t, err)
	assert.True(t, major.Winner)
	assert.Equal(t, "MAJOR", major.PrizeType)

	seco, err := f.store.GetCombination(ctx, lottery.CombinationKey{LotteryID: "lot-1", Number: "5555", Series: "001", DrawDate: drawDate})
	require.NoError(t, err)
	assert.True(t, seco.Winner)
	assert.Equal(t, "SECO", seco.PrizeType)
}

func TestSettlementIsIdempotentAndCreditsOnce(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	b := f.bet(t, "alice", "4321", "007", 3)

	engine := f.engine(WithCredit(f.balances))
	first, err := engine.Settle(ctx, result())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Won)
	assert.True(t, first.TotalPaid.Equal(decimal.NewFromInt(900)))

	second, err := engine.Settle(ctx, result())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)

	bal, err := f.balances.Available(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(900)), bal.String())
	assert.Equal(t, lottery.BetWon, f.reload(t, b).Status)

	plan, err := f.catalog.GetActivePlan(ctx, "lot-1", drawDate)
	require.NoError(t, err)
	assert.True(t, plan.Locked())
}

func TestMissingPlanLeavesBetsPending(t *testing.T) {
	f := newFixture(t, false)
	b := f.bet(t, "alice", "4321", "007", 1)

	_, err := f.engine().Settle(context.Background(), result())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
	assert.Equal(t, lottery.BetPending, f.reload(t, b).Status)
}

type heldLock struct{ err error }

func (l heldLock) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, l.err
}

func TestDrawLockHeldElsewhere(t *testing.T) {
	f := newFixture(t, true)
	b := f.bet(t, "alice", "4321", "007", 1)

	_, err := f.engine(WithDrawLock(heldLock{}, time.Minute)).Settle(context.Background(), result())
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	assert.Equal(t, lottery.BetPending, f.reload(t, b).Status)

	_, err = f.engine(WithDrawLock(heldLock{err: errors.New("redis down")}, time.Minute)).Settle(context.Background(), result())
	require.Error(t, err)
}

func TestDrawLockReleasedAfterSettlement(t *testing.T) {
	f := newFixture(t, true)
	f.bet(t, "alice", "4321", "007", 1)
	locks := testutil.NewMemoryCache()
	ctx := context.Background()

	release, ok, err := locks.Acquire(ctx, "settle:lot-1:2026-10-23", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.engine(WithDrawLock(locks, time.Minute)).Settle(ctx, result())
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	release()
	report, err := f.engine(WithDrawLock(locks, time.Minute)).Settle(ctx, result())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Won)

	// Settle gives the lock back when it returns.
	_, ok, err = locks.Acquire(ctx, "settle:lot-1:2026-10-23", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreditFailureIsCountedNotReverted(t *testing.T) {
	f := newFixture(t, true)
	b := f.bet(t, "alice", "4321", "007", 1)
	wallet := testutil.NewMockWallet()
	wallet.CreditErr = errors.New("ledger offline")

	report, err := f.engine(WithCredit(wallet)).Settle(context.Background(), result())
	require.NoError(t, err)
	assert.Equal(t, 1, report.CreditFailures)
	assert.Equal(t, lottery.BetWon, f.reload(t, b).Status)
	assert.Empty(t, wallet.Movements())
}

func TestUnknownLottery(t *testing.T) {
	f := newFixture(t, true)
	res := result()
	res.LotteryID = "missing"
	_, err := f.engine().Settle(context.Background(), res)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
