package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domainbalance "github.com/R3E-Network/lottery_layer/internal/app/domain/balance"
	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/inventory"
	"github.com/R3E-Network/lottery_layer/internal/app/services/validation"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/memory"
	"github.com/R3E-Network/lottery_layer/internal/balance"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Thursday; the lottery draws on Friday.
var now = time.Date(2026, 10, 22, 12, 0, 0, 0, time.UTC)

var drawDate = time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)

type harness struct {
	store    *memory.Store
	inv      *inventory.Service
	balances *balance.Manager
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := setup(t)
	h.svc = h.build(h.balances, h.store)
	return h
}

func setup(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	log := logger.NewNop()
	lot := lottery.Lottery{
		ID:                    "lot-1",
		Code:                  "BOG",
		DrawDay:               time.Friday,
		TimeZone:              "UTC",
		FractionCount:         3,
		FractionPrice:         decimal.NewFromInt(1000),
		RequiresSeries:        true,
		AvailableSeries:       lottery.SeriesSet{"001", "007"},
		AllowDuplicateNumbers: true,
		Active:                true,
	}
	lot.Normalize()
	_, err := store.CreateLottery(context.Background(), lot)
	require.NoError(t, err)
	return &harness{
		store:    store,
		inv:      inventory.New(store, store, log),
		balances: balance.NewManager(store, log),
	}
}

func (h *harness) build(wallet Wallet, bets storage.BetStore) *Service {
	v := validation.New(h.inv, h.balances, h.store)
	return New(h.store, bets, h.inv, v, wallet, logger.NewNop(), WithClock(func() time.Time { return now }))
}

func (h *harness) fund(t *testing.T, user string, amount int64) {
	t.Helper()
	_, err := h.balances.Deposit(context.Background(), user, decimal.NewFromInt(amount), "seed")
	require.NoError(t, err)
}

func (h *harness) used(t *testing.T, number, series string) int {
	t.Helper()
	n, err := h.inv.UsedFractions(context.Background(), lottery.CombinationKey{LotteryID: "lot-1", Number: number, Series: series, DrawDate: drawDate})
	require.NoError(t, err)
	return n
}

func (h *harness) balance(t *testing.T, user string) decimal.Decimal {
	t.Helper()
	b, err := h.balances.Available(context.Background(), user)
	require.NoError(t, err)
	return b
}

func bet(number, series string, fractions int) validation.BetRequest {
	return validation.BetRequest{
		LotteryID: "lot-1",
		Number:    number,
		Series:    series,
		Fractions: fractions,
		Amount:    decimal.NewFromInt(int64(fractions) * 1000),
	}
}

func TestFractionScenario(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "alice", 5000)
	h.fund(t, "bob", 5000)
	ctx := context.Background()

	placed, err := h.svc.PlaceBet(ctx, "alice", bet("1234", "001", 2))
	require.NoError(t, err)
	assert.Equal(t, lottery.BetPending, placed.Status)
	assert.True(t, placed.DrawDate.Equal(drawDate))
	assert.Equal(t, 2, h.used(t, "1234", "001"))

	_, err = h.svc.PlaceBet(ctx, "bob", bet("1234", "001", 2))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Contains(t, err.Error(), "1 fraction available")
	assert.Equal(t, 2, h.used(t, "1234", "001"))
	assert.True(t, h.balance(t, "bob").Equal(decimal.NewFromInt(5000)))
	assert.True(t, h.balance(t, "alice").Equal(decimal.NewFromInt(3000)))
}

func TestBatchIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "alice", 10000)

	_, err := h.svc.PlaceBatch(context.Background(), "alice", []validation.BetRequest{
		bet("0001", "001", 1),
		bet("0002", "001", 1),
		bet("12", "001", 1),
	})
	require.Error(t, err)
	var svcErr *apperrors.ServiceError
	require.True(t, apperrors.As(err, &svcErr))
	assert.Equal(t, []string{"bet 3: number must have 4 digits"}, svcErr.Details)

	bets, err := h.store.ListBets(context.Background(), lottery.BetFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, bets)
	assert.Equal(t, 0, h.used(t, "0001", "001"))
	assert.True(t, h.balance(t, "alice").Equal(decimal.NewFromInt(10000)))
}

func TestBatchAdmitsTogether(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "alice", 10000)

	receipt, err := h.svc.PlaceBatch(context.Background(), "alice", []validation.BetRequest{
		bet("0001", "001", 1),
		bet("0001", "001", 2),
		bet("0002", "007", 3),
	})
	require.NoError(t, err)
	require.Len(t, receipt.Bets, 3)
	assert.True(t, receipt.Total.Equal(decimal.NewFromInt(6000)))
	for _, b := range receipt.Bets {
		assert.Equal(t, receipt.BatchID, b.BatchID)
	}
	assert.Equal(t, 3, h.used(t, "0001", "001"))
	assert.True(t, h.balance(t, "alice").Equal(decimal.NewFromInt(4000)))
}

func TestBatchRejectsSameNumberInTwoSeries(t *testing.T) {
	h := setup(t)
	lot, err := h.store.GetLottery(context.Background(), "lot-1")
	require.NoError(t, err)
	lot.AllowDuplicateNumbers = false
	_, err = h.store.UpdateLottery(context.Background(), lot)
	require.NoError(t, err)
	h.svc = h.build(h.balances, h.store)
	h.fund(t, "alice", 10000)

	_, err = h.svc.PlaceBatch(context.Background(), "alice", []validation.BetRequest{
		bet("0042", "001", 1),
		bet("0042", "007", 1),
	})
	require.Error(t, err)
	var svcErr *apperrors.ServiceError
	require.True(t, apperrors.As(err, &svcErr))
	assert.Equal(t, []string{"bet 2: number 0042 is already played in another series for this draw"}, svcErr.Details)

	bets, err := h.store.ListBets(context.Background(), lottery.BetFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, bets)
	assert.Equal(t, 0, h.used(t, "0042", "001"))
	assert.True(t, h.balance(t, "alice").Equal(decimal.NewFromInt(10000)))
}

type brokenWallet struct{ debitErr error }

func (w brokenWallet) Debit(context.Context, string, decimal.Decimal, string) error {
	return w.debitErr
}
func (w brokenWallet) Refund(context.Context, string, decimal.Decimal, string) error {
	return nil
}

func TestDebitFailureReleasesReservations(t *testing.T) {
	h := setup(t)
	h.fund(t, "alice", 10000)
	h.svc = h.build(brokenWallet{debitErr: errors.New("ledger offline")}, h.store)

	_, err := h.svc.PlaceBatch(context.Background(), "alice", []validation.BetRequest{bet("0001", "001", 2), bet("0002", "001", 1)})
	require.Error(t, err)
	assert.Equal(t, 0, h.used(t, "0001", "001"))
	assert.Equal(t, 0, h.used(t, "0002", "001"))
	assert.False(t, apperrors.IsKind(err, apperrors.KindValidation))

	h.svc = h.build(brokenWallet{debitErr: fmt.Errorf("debit: %w", domainbalance.ErrInsufficientFunds)}, h.store)
	_, err = h.svc.PlaceBet(context.Background(), "alice", bet("0001", "001", 1))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, 0, h.used(t, "0001", "001"))
}

type failingLedger struct {
	*memory.Store
}

func (failingLedger) CreateBets(context.Context, []lottery.Bet) ([]lottery.Bet, error) {
	return nil, errors.New("disk full")
}

func TestPersistFailureRefundsAndReleases(t *testing.T) {
	h := setup(t)
	h.fund(t, "alice", 5000)
	h.svc = h.build(h.balances, &failingLedger{Store: h.store})

	_, err := h.svc.PlaceBet(context.Background(), "alice", bet("0009", "007", 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, h.used(t, "0009", "007"))
	assert.True(t, h.balance(t, "alice").Equal(decimal.NewFromInt(5000)))
}

func TestConcurrentAdmissionNeverOversells(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	for _, u := range users {
		h.fund(t, u, 1000)
	}

	var mu sync.Mutex
	admitted := 0
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			if _, err := h.svc.PlaceBet(ctx, user, bet("0777", "007", 1)); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 3, admitted)
	assert.Equal(t, 3, h.used(t, "0777", "007"))
}

func TestUnknownLotteryAndMissingUser(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "alice", 5000)

	req := bet("0001", "001", 1)
	req.LotteryID = "nope"
	_, err := h.svc.PlaceBet(context.Background(), "alice", req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lottery nope does not exist")

	_, err = h.svc.PlaceBet(context.Background(), "", bet("0001", "001", 1))
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}
