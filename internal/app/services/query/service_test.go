package query

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/inventory"
	"github.com/R3E-Network/lottery_layer/internal/app/services/prizes"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now      = time.Date(2026, 10, 22, 12, 0, 0, 0, time.UTC)
	drawDate = time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)
)

func setup(t *testing.T, withPlan bool) (*Service, *memory.Store) {
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
		NumberRangeEnd:  "0019",
		AvailableSeries: lottery.SeriesSet{"001"},
		LastDrawNumber:  2740,
		Active:          true,
	}
	lot.Normalize()
	lot, err := store.CreateLottery(ctx, lot)
	require.NoError(t, err)

	catalog := prizes.New(store, log)
	if withPlan {
		major := lottery.PrizeType{Code: "MAJOR", Kind: lottery.KindMajor}
		lastTwo := lottery.PrizeType{Code: "LAST_TWO", Kind: lottery.KindApproxSameSeries, Rule: lottery.MatchRule{Pattern: lottery.PatternLastTwo}}
		_, err = catalog.CreatePlan(ctx, lot, lottery.PrizePlan{
			Name:      "weekly",
			StartDate: drawDate.AddDate(0, -1, 0),
			Active:    true,
			Prizes: []lottery.Prize{
				prizes.NewPrize(major, "Mayor", decimal.NewFromInt(900), 3),
				prizes.NewPrize(lastTwo, "Dos ultimas", decimal.NewFromInt(60), 3),
			},
		})
		require.NoError(t, err)
	}

	svc := New(store, store, store, inventory.New(store, store, log), catalog)
	svc.now = func() time.Time { return now }
	return svc, store
}

func TestSummaryListsPotentialPrizes(t *testing.T) {
	svc, _ := setup(t, true)

	summary, err := svc.Summary(context.Background(), "lot-1", "7", "1", 2)
	require.NoError(t, err)
	assert.Equal(t, "0007", summary.Number)
	assert.Equal(t, "001", summary.Series)
	assert.True(t, summary.Amount.Equal(decimal.NewFromInt(2000)))
	assert.True(t, summary.DrawDate.Equal(drawDate))
	assert.Equal(t, 2741, summary.DrawNumber)
	assert.Equal(t, 1, summary.DaysUntilDraw)
	assert.True(t, summary.BettingOpen)
	assert.Equal(t, 3, summary.Available)

	require.Len(t, summary.PotentialPrizes, 2)
	assert.True(t, summary.PotentialPrizes[0].Amount.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, "Last two", summary.PotentialPrizes[1].Description)
	assert.True(t, summary.PotentialPrizes[1].Amount.Equal(decimal.NewFromInt(40)))
}

func TestSummaryWithoutPlan(t *testing.T) {
	svc, _ := setup(t, false)
	summary, err := svc.Summary(context.Background(), "lot-1", "0007", "001", 1)
	require.NoError(t, err)
	assert.Empty(t, summary.PotentialPrizes)

	_, err = svc.Summary(context.Background(), "missing", "0007", "001", 1)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestAvailableNumbers(t *testing.T) {
	svc, _ := setup(t, false)
	list, err := svc.AvailableNumbers(context.Background(), "lot-1", "001")
	require.NoError(t, err)
	assert.Len(t, list, 20)

	_, err = svc.AvailableNumbers(context.Background(), "lot-1", "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestDrawResultsAndHistory(t *testing.T) {
	svc, store := setup(t, false)
	ctx := context.Background()

	bets, err := store.CreateBets(ctx, []lottery.Bet{
		{LotteryID: "lot-1", UserID: "alice", Number: "0001", Series: "001", Fractions: 1, Amount: decimal.NewFromInt(1000), DrawDate: drawDate},
		{LotteryID: "lot-1", UserID: "bob", Number: "0002", Series: "001", Fractions: 1, Amount: decimal.NewFromInt(1000), DrawDate: drawDate},
	})
	require.NoError(t, err)
	_, err = store.TransitionBet(ctx, bets[0].ID, lottery.BetWon, decimal.NewFromInt(300), lottery.WinningDetails{}, now)
	require.NoError(t, err)
	_, err = store.TransitionBet(ctx, bets[1].ID, lottery.BetLost, decimal.Zero, lottery.WinningDetails{}, now)
	require.NoError(t, err)

	_, err = svc.DrawResults(ctx, "lot-1", drawDate)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	_, _, err = store.CreateResult(ctx, lottery.Result{LotteryID: "lot-1", DrawDate: drawDate, Number: "0001", Series: "001"})
	require.NoError(t, err)
	report, err := svc.DrawResults(ctx, "lot-1", drawDate.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counts[lottery.BetWon])
	assert.Equal(t, 1, report.Counts[lottery.BetLost])
	require.Len(t, report.Winners, 1)
	assert.True(t, report.TotalPaid.Equal(decimal.NewFromInt(300)))

	last, err := svc.LastResults(ctx, "lot-1", 0)
	require.NoError(t, err)
	assert.Len(t, last, 1)

	history, err := svc.History(ctx, lottery.BetFilter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, lottery.BetWon, history[0].Status)

	_, err = svc.History(ctx, lottery.BetFilter{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = svc.Bet(ctx, "bob", bets[0].ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
