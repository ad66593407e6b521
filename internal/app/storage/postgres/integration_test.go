package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/R3E-Network/lottery_layer/internal/platform/migrations"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, migrations.Apply(ctx, db.DB))
	store := New(db)

	suffix := uuid.NewString()[:8]
	closing := lottery.MustTimeOfDay("00:00")
	lot, err := store.CreateLottery(ctx, lottery.Lottery{
		Code: "IT" + suffix, Name: "Integration", DrawDay: time.Friday,
		DrawTime: lottery.MustTimeOfDay("22:30"), ClosingTime: &closing,
		TimeZone: "UTC", FractionCount: 3, FractionPrice: decimal.NewFromInt(1000),
		NumberRangeEnd: "9999", RequiresSeries: true, AvailableSeries: lottery.SeriesSet{"001", "002"},
		Active: true,
	})
	require.NoError(t, err)

	got, err := store.GetLotteryByCode(ctx, lot.Code)
	require.NoError(t, err)
	assert.Equal(t, lottery.MustTimeOfDay("22:30"), got.DrawTime)
	require.NotNil(t, got.ClosingTime)
	assert.Equal(t, "00:00", got.Closing().String())
	assert.Equal(t, time.Friday, got.DrawDay)
	assert.Equal(t, lottery.SeriesSet{"001", "002"}, got.AvailableSeries)

	k := lottery.CombinationKey{LotteryID: lot.ID, Number: "0042", Series: "001", DrawDate: drawDate}
	out, err := store.ReserveFractions(ctx, storage.ReserveRequest{Key: k, Fractions: 2, Capacity: 3})
	require.NoError(t, err)
	assert.True(t, out.Reserved)
	out, err = store.ReserveFractions(ctx, storage.ReserveRequest{Key: k, Fractions: 2, Capacity: 3})
	require.NoError(t, err)
	assert.False(t, out.Reserved)
	assert.Equal(t, 1, out.Available)
	require.NoError(t, store.ReleaseFractions(ctx, k, 2))

	stats, err := store.ReplaceCombinations(ctx, lot.ID, drawDate, []lottery.Combination{
		{Number: "0042", Series: "001", TotalFractions: 3},
		{Number: "0100", Series: "002", TotalFractions: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	uploaded, err := store.HasUploadedInventory(ctx, lot.ID, drawDate)
	require.NoError(t, err)
	assert.True(t, uploaded)

	unknown := lottery.CombinationKey{LotteryID: lot.ID, Number: "0777", Series: "001", DrawDate: drawDate}
	out, err = store.ReserveFractions(ctx, storage.ReserveRequest{Key: unknown, Fractions: 1, Capacity: 3})
	require.NoError(t, err)
	assert.False(t, out.Eligible)

	bets, err := store.CreateBets(ctx, []lottery.Bet{{
		LotteryID: lot.ID, UserID: "u-" + suffix, Number: "0042", Series: "001",
		Fractions: 1, Amount: decimal.NewFromInt(1000), DrawDate: drawDate,
	}})
	require.NoError(t, err)
	sum, err := store.SumPendingFractions(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 1, sum)

	moved, err := store.TransitionBet(ctx, bets[0].ID, lottery.BetLost, decimal.Zero, lottery.WinningDetails{}, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, moved)
	moved, err = store.TransitionBet(ctx, bets[0].ID, lottery.BetWon, decimal.Zero, lottery.WinningDetails{}, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, moved)

	r := lottery.Result{LotteryID: lot.ID, DrawDate: drawDate, Number: "0042", Series: "001"}
	_, created, err := store.CreateResult(ctx, r)
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = store.CreateResult(ctx, r)
	require.NoError(t, err)
	assert.False(t, created)

	user := "u-" + suffix
	_, err = store.AdjustBalance(ctx, user, decimal.NewFromInt(1500))
	require.NoError(t, err)
	_, err = store.AdjustBalance(ctx, user, decimal.NewFromInt(-2000))
	assert.Error(t, err)
	acct, err := store.AdjustBalance(ctx, user, decimal.NewFromInt(-500))
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(1000)))
}
