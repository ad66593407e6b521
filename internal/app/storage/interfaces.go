package storage

import (
	"context"
	"errors"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/balance"
	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by every store when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// LotteryStore persists lottery definitions.
type LotteryStore interface {
	CreateLottery(ctx context.Context, l lottery.Lottery) (lottery.Lottery, error)
	UpdateLottery(ctx context.Context, l lottery.Lottery) (lottery.Lottery, error)
	GetLottery(ctx context.Context, id string) (lottery.Lottery, error)
	GetLotteryByCode(ctx context.Context, code string) (lottery.Lottery, error)
	ListLotteries(ctx context.Context, activeOnly bool) ([]lottery.Lottery, error)
}

// ReserveRequest asks for fractions of one key. Capacity is the total used
// when the store has to materialise a derived row.
type ReserveRequest struct {
	Key       lottery.CombinationKey
	Fractions int
	Capacity  int
}

// ReserveOutcome reports a reservation attempt. Eligible is false when the
// draw has an uploaded list that does not offer the key.
type ReserveOutcome struct {
	Reserved    bool
	Eligible    bool
	Available   int
	Combination lottery.Combination
}

// RefreshStats summarises a combination list upload.
type RefreshStats struct {
	Inserted    int `json:"inserted"`
	Reactivated int `json:"reactivated"`
	Deactivated int `json:"deactivated"`
}

// CombinationStore persists per-draw combination inventory. ReserveFractions
// and ReleaseFractions are atomic per key.
type CombinationStore interface {
	ReserveFractions(ctx context.Context, req ReserveRequest) (ReserveOutcome, error)
	ReleaseFractions(ctx context.Context, key lottery.CombinationKey, fractions int) error
	GetCombination(ctx context.Context, key lottery.CombinationKey) (lottery.Combination, error)
	HasUploadedInventory(ctx context.Context, lotteryID string, drawDate time.Time) (bool, error)
	ReplaceCombinations(ctx context.Context, lotteryID string, drawDate time.Time, rows []lottery.Combination) (RefreshStats, error)
	ListCombinations(ctx context.Context, lotteryID string, drawDate time.Time, series string) ([]lottery.Combination, error)
	MarkWinner(ctx context.Context, key lottery.CombinationKey, prizeType string, amount decimal.Decimal, capacity int) error
}

// BetStore is the bet ledger.
type BetStore interface {
	// CreateBets writes all bets or none.
	CreateBets(ctx context.Context, bets []lottery.Bet) ([]lottery.Bet, error)
	GetBet(ctx context.Context, id string) (lottery.Bet, error)
	ListBets(ctx context.Context, filter lottery.BetFilter) ([]lottery.Bet, error)
	ListPendingBets(ctx context.Context, lotteryID string, drawDate time.Time) ([]lottery.Bet, error)
	SumPendingFractions(ctx context.Context, key lottery.CombinationKey) (int, error)
	HasPendingNumber(ctx context.Context, lotteryID string, drawDate time.Time, number, excludeSeries string) (bool, error)
	// TransitionBet moves a PENDING bet to a terminal status and reports
	// whether this call performed the transition.
	TransitionBet(ctx context.Context, id string, to lottery.BetStatus, won decimal.Decimal, details lottery.WinningDetails, at time.Time) (bool, error)
}

// PrizeStore persists prize types and plans.
type PrizeStore interface {
	CreatePrizeType(ctx context.Context, pt lottery.PrizeType) (lottery.PrizeType, error)
	GetPrizeTypeByCode(ctx context.Context, code string) (lottery.PrizeType, error)
	ListPrizeTypes(ctx context.Context) ([]lottery.PrizeType, error)

	CreatePlan(ctx context.Context, plan lottery.PrizePlan) (lottery.PrizePlan, error)
	UpdatePlan(ctx context.Context, plan lottery.PrizePlan) (lottery.PrizePlan, error)
	GetPlan(ctx context.Context, id string) (lottery.PrizePlan, error)
	ListPlans(ctx context.Context, lotteryID string) ([]lottery.PrizePlan, error)
	DeactivatePlans(ctx context.Context, lotteryID, exceptID string) error
	LockPlan(ctx context.Context, id string, at time.Time) error
}

// ResultStore persists draw results.
type ResultStore interface {
	// CreateResult stores r unless a result for the same lottery and draw date
	// exists, in which case the existing one is returned with created=false.
	CreateResult(ctx context.Context, r lottery.Result) (stored lottery.Result, created bool, err error)
	GetResult(ctx context.Context, lotteryID string, drawDate time.Time) (lottery.Result, error)
	ListResults(ctx context.Context, lotteryID string, limit int) ([]lottery.Result, error)
	MarkResultSettled(ctx context.Context, id string, at time.Time) error
}

// BalanceStore persists user balances.
type BalanceStore interface {
	GetBalance(ctx context.Context, userID string) (balance.Account, error)
	// AdjustBalance applies delta atomically. Negative deltas fail with
	// balance.ErrInsufficientFunds rather than overdraw.
	AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (balance.Account, error)
	CreateBalanceTransaction(ctx context.Context, tx balance.Transaction) (balance.Transaction, error)
	ListBalanceTransactions(ctx context.Context, userID string, limit int) ([]balance.Transaction, error)
}
