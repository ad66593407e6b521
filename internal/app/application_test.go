package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/prizes"
	"github.com/R3E-Network/lottery_layer/internal/config"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

func TestApplicationLifecycle(t *testing.T) {
	application, err := New(Stores{}, Options{}, logger.NewNop())
	require.NoError(t, err)
	require.NotNil(t, application.Admission)
	require.NotNil(t, application.Settlement)

	ctx := context.Background()
	require.NoError(t, application.Start(ctx))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, application.Stop(stopCtx))
}

func TestApplicationRejectsBadSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.DrawRollover = "every now and then"
	_, err := New(Stores{}, Options{Config: cfg}, logger.NewNop())
	assert.Error(t, err)
}

func TestDeliveredResultSettlesAndCredits(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Enabled = false
	application, err := New(Stores{}, Options{Config: cfg}, logger.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	drawDate := time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)

	lot := lottery.Lottery{
		ID: "lot-1", Code: "BOG", DrawDay: time.Friday, TimeZone: "UTC",
		FractionCount: 3, FractionPrice: decimal.NewFromInt(1000),
		RequiresSeries: true, AvailableSeries: lottery.SeriesSet{"001", "007"},
		Active: true,
	}
	lot.Normalize()
	lot, err = application.Stores.Lotteries.CreateLottery(ctx, lot)
	require.NoError(t, err)

	major := lottery.PrizeType{Code: "MAJOR", Kind: lottery.KindMajor}
	_, err = application.Prizes.CreatePlan(ctx, lot, lottery.PrizePlan{
		Name:      "weekly",
		StartDate: drawDate.AddDate(0, -1, 0),
		Active:    true,
		Prizes:    []lottery.Prize{prizes.NewPrize(major, "Mayor", decimal.NewFromInt(900), lot.FractionCount)},
	})
	require.NoError(t, err)

	bets, err := application.Stores.Bets.CreateBets(ctx, []lottery.Bet{{
		LotteryID: lot.ID, UserID: "alice", Number: "4321", Series: "007",
		Fractions: 1, Amount: lot.ExpectedAmount(1), DrawDate: drawDate,
	}})
	require.NoError(t, err)

	delivery, err := application.Results.Deliver(ctx, lottery.Result{
		LotteryID: lot.ID, DrawDate: drawDate, Number: "4321", Series: "007",
	})
	require.NoError(t, err)
	assert.True(t, delivery.Settled)
	require.NotNil(t, delivery.Report)
	assert.Equal(t, 1, delivery.Report.Won)

	got, err := application.Query.Bet(ctx, "alice", bets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, lottery.BetWon, got.Status)

	available, err := application.Balances.Available(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, available.Equal(decimal.NewFromInt(300)), available.String())
}
