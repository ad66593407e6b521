package prizes

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/memory"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLottery() lottery.Lottery {
	l := lottery.Lottery{ID: "lot-1", Code: "BOG", FractionCount: 3, FractionPrice: decimal.NewFromInt(1000)}
	l.Normalize()
	return l
}

var (
	majorType  = lottery.PrizeType{Code: "MAJOR", Kind: lottery.KindMajor, RequiresSeries: true}
	secoType   = lottery.PrizeType{Code: "SECO", Kind: lottery.KindSeco}
	sameType   = lottery.PrizeType{Code: "APPROX_SAME", Kind: lottery.KindApproxSameSeries, Rule: lottery.MatchRule{Pattern: lottery.PatternFirstThree}}
	diffType   = lottery.PrizeType{Code: "APPROX_DIFF", Kind: lottery.KindApproxDiffSeries, Rule: lottery.MatchRule{Positions: []int{0, 1, 2, 3}}}
	invertType = lottery.PrizeType{Code: "INVERTED", Kind: lottery.KindSpecial, Rule: lottery.MatchRule{Special: lottery.SpecialInverted}}
)

func samplePlan(start time.Time) lottery.PrizePlan {
	lot := testLottery()
	return lottery.PrizePlan{
		Name:      "weekly",
		StartDate: start,
		Active:    true,
		Prizes: []lottery.Prize{
			NewPrize(majorType, "Mayor", decimal.NewFromInt(900), lot.FractionCount),
			NewPrize(secoType, "Seco 30", decimal.NewFromInt(30), lot.FractionCount),
			NewPrize(secoType, "Seco 90", decimal.NewFromInt(90), lot.FractionCount),
			NewPrize(sameType, "Tres primeras", decimal.NewFromInt(60), lot.FractionCount),
			NewPrize(diffType, "Cuatro cifras", decimal.NewFromInt(45), lot.FractionCount),
			NewPrize(invertType, "Invertido", decimal.NewFromInt(15), lot.FractionCount),
		},
	}
}

func TestActivePlanLifecycle(t *testing.T) {
	store := memory.New()
	catalog := New(store, logger.NewNop())
	lot := testLottery()
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := catalog.GetActivePlan(ctx, lot.ID, jan)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))

	first, err := catalog.CreatePlan(ctx, lot, samplePlan(jan))
	require.NoError(t, err)
	second, err := catalog.CreatePlan(ctx, lot, samplePlan(jan.AddDate(0, 6, 0)))
	require.NoError(t, err)

	active, err := catalog.GetActivePlan(ctx, lot.ID, jan.AddDate(0, 7, 0))
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	// The first plan was superseded.
	_, err = catalog.GetActivePlan(ctx, lot.ID, jan.AddDate(0, 1, 0))
	require.Error(t, err)

	_, err = catalog.ActivatePlan(ctx, first.ID)
	require.NoError(t, err)
	active, err = catalog.GetActivePlan(ctx, lot.ID, jan.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, catalog.LockPlan(ctx, first.ID, time.Now()))
	_, err = catalog.UpdatePlan(ctx, lot, active)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestTierLookups(t *testing.T) {
	plan := samplePlan(time.Now())

	major, ok := Major(plan)
	require.True(t, ok)
	assert.True(t, major.FractionAmount.Equal(decimal.NewFromInt(300)))

	secos := Secos(plan)
	require.Len(t, secos, 2)
	assert.Equal(t, "Seco 90", secos[0].Name)

	assert.Len(t, Approximations(plan, true), 1)
	assert.Len(t, Approximations(plan, false), 1)
	assert.Len(t, Specials(plan), 1)
}

func TestValidatePlanRejectsBrokenPlans(t *testing.T) {
	lot := testLottery()

	plan := samplePlan(time.Now())
	plan.Prizes = append(plan.Prizes, lottery.Prize{Type: lottery.PrizeType{Code: "BROKEN", Kind: lottery.KindApproxSameSeries}, Amount: decimal.NewFromInt(10), FractionAmount: decimal.NewFromInt(3)})
	err := ValidatePlan(plan, lot)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))
	assert.Contains(t, err.Error(), "no positions or pattern")

	broken := lot
	broken.FractionPrice = decimal.Zero
	err = ValidatePlan(samplePlan(time.Now()), broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fraction_price")

	err = ValidatePlan(lottery.PrizePlan{Name: "empty"}, lot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no prizes")
}

func TestFullPatternValidatesAgainstLotteryWidth(t *testing.T) {
	lot := testLottery()
	lot.NumberRangeStart, lot.NumberRangeEnd = "000", "999"

	fullType := lottery.PrizeType{Code: "FULL", Kind: lottery.KindApproxDiffSeries, Rule: lottery.MatchRule{Pattern: lottery.PatternFull}}
	plan := lottery.PrizePlan{Name: "short", Prizes: []lottery.Prize{NewPrize(fullType, "", decimal.NewFromInt(45), lot.FractionCount)}}
	require.NoError(t, ValidatePlan(plan, lot))

	plan.Prizes = append(plan.Prizes, NewPrize(diffType, "", decimal.NewFromInt(45), lot.FractionCount))
	err := ValidatePlan(plan, lot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position 3 out of range for 3 digits")
}

func TestCreatePrizeTypeValidatesRule(t *testing.T) {
	catalog := New(memory.New(), logger.NewNop())
	ctx := context.Background()

	_, err := catalog.CreatePrizeType(ctx, lottery.PrizeType{Code: "bad", Kind: lottery.KindSpecial})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	pt, err := catalog.CreatePrizeType(ctx, lottery.PrizeType{Code: "last_two", Kind: lottery.KindApproxSameSeries, Rule: lottery.MatchRule{Pattern: lottery.PatternLastTwo}})
	require.NoError(t, err)
	assert.Equal(t, "LAST_TWO", pt.Code)

	found, err := catalog.PrizeType(ctx, "last_two")
	require.NoError(t, err)
	assert.Equal(t, pt.ID, found.ID)
}
