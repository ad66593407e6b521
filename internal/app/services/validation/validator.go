// Package validation runs the pre-admission checks on bet requests. Every
// check runs; failures accumulate so the caller sees all problems at once.
// Nothing here mutates state.
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/inventory"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// BetRequest is one bet as submitted by a user.
type BetRequest struct {
	LotteryID string          `json:"lottery_id" validate:"required"`
	Number    string          `json:"number"`
	Series    string          `json:"series"`
	Fractions int             `json:"fractions"`
	Amount    decimal.Decimal `json:"amount"`
}

// Key is the inventory key the request targets for the given draw.
func (r BetRequest) Key(drawDate time.Time) lottery.CombinationKey {
	return lottery.CombinationKey{LotteryID: r.LotteryID, Number: r.Number, Series: r.Series, DrawDate: drawDate}
}

// Result is the outcome of validating one request.
type Result struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

func (r *Result) fail(format string, args ...interface{}) {
	r.IsValid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Inventory answers advisory availability questions.
type Inventory interface {
	AvailableFractions(ctx context.Context, lot lottery.Lottery, key lottery.CombinationKey) (int, error)
}

// Funds reports a user's spendable balance.
type Funds interface {
	Available(ctx context.Context, userID string) (decimal.Decimal, error)
}

// PendingNumbers finds bets on the same number in other series.
type PendingNumbers interface {
	HasPendingNumber(ctx context.Context, lotteryID string, drawDate time.Time, number, excludeSeries string) (bool, error)
}

// Planner tracks what earlier bets of the same batch want: fractions per key
// and the series each number is played in.
type Planner interface {
	Planned(key lottery.CombinationKey) int
	PlannedInOtherSeries(key lottery.CombinationKey) bool
	Plan(key lottery.CombinationKey, fractions int)
}

// Validator runs the check pipeline.
type Validator struct {
	inventory Inventory
	funds     Funds
	pending   PendingNumbers
	validate  *validator.Validate
}

// New constructs a validator. pending may be nil when no lottery restricts
// duplicate numbers.
func New(inventory Inventory, funds Funds, pending PendingNumbers) *Validator {
	return &Validator{
		inventory: inventory,
		funds:     funds,
		pending:   pending,
		validate:  validator.New(),
	}
}

// Item is one request of a batch with its lottery already resolved.
type Item struct {
	Lottery lottery.Lottery
	Request BetRequest
}

// Validate checks a single request at wall-clock time now.
func (v *Validator) Validate(ctx context.Context, userID string, lot lottery.Lottery, req BetRequest, now time.Time) (Result, error) {
	results, err := v.ValidateBatch(ctx, userID, now, []Item{{Lottery: lot, Request: req}}, newPlanner())
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// ValidateBatch checks every request of a batch. Availability accounts for the
// fractions earlier requests of the batch already plan for the same key, and
// the balance check uses the cumulative amount. The returned error is reserved
// for infrastructure failures.
func (v *Validator) ValidateBatch(ctx context.Context, userID string, now time.Time, items []Item, planner Planner) ([]Result, error) {
	if planner == nil {
		planner = newPlanner()
	}
	var balance *decimal.Decimal
	cumulative := decimal.Zero
	results := make([]Result, len(items))

	for i, item := range items {
		lot, req := item.Lottery, item.Request
		res := Result{IsValid: true}
		drawDate := lot.DrawDateAt(now)

		if err := v.validate.Struct(req); err != nil {
			for _, fe := range asFieldErrors(err) {
				res.fail("%s is required", fe.Field())
			}
		}

		// 1. lottery active
		if !lot.Active {
			res.fail("lottery %s is not active", lot.Code)
		}

		// 2. betting window
		if !lot.BettingOpen(now) {
			res.fail("betting for %s is closed: the %s draw closes at %s", lot.Code, lot.DrawDay, lot.Closing())
		}

		// 3. number format and range
		numberOK := v.checkNumber(&res, lot, req.Number)

		// 4. series format and membership
		seriesOK := v.checkSeries(&res, lot, req.Series)

		// 5. fractions
		fractionsOK := true
		if req.Fractions < 1 {
			res.fail("fractions must be at least 1")
			fractionsOK = false
		} else if lot.MaxFractionsPerBet > 0 && req.Fractions > lot.MaxFractionsPerBet {
			res.fail("at most %d fractions per bet", lot.MaxFractionsPerBet)
			fractionsOK = false
		} else if req.Fractions > lot.FractionCount {
			res.fail("a ticket has only %d fractions", lot.FractionCount)
			fractionsOK = false
		}
		if numberOK && seriesOK {
			key := req.Key(drawDate)
			if fractionsOK {
				available, err := v.inventory.AvailableFractions(ctx, lot, key)
				if err != nil {
					return nil, fmt.Errorf("availability of %s: %w", key.Label(), err)
				}
				available -= planner.Planned(key)
				if available < 0 {
					available = 0
				}
				if req.Fractions > available {
					res.fail("requested %d fractions but %s", req.Fractions, inventory.AvailableMessage(available))
				}
			}
			if !lot.AllowDuplicateNumbers {
				taken := planner.PlannedInOtherSeries(key)
				if !taken && v.pending != nil {
					var err error
					taken, err = v.pending.HasPendingNumber(ctx, lot.ID, drawDate, req.Number, req.Series)
					if err != nil {
						return nil, fmt.Errorf("duplicate check for %s: %w", key.Label(), err)
					}
				}
				if taken {
					res.fail("number %s is already played in another series for this draw", req.Number)
				}
			}
			if fractionsOK {
				planner.Plan(key, req.Fractions)
			}
		}

		// 6. amount matches price
		expected := lot.ExpectedAmount(req.Fractions)
		if req.Fractions >= 1 && !req.Amount.Equal(expected) {
			res.fail("amount %s does not match %d fractions at %s (expected %s)", req.Amount, req.Fractions, lot.FractionPrice, expected)
		}

		// 7. amount bounds
		if lot.MinBetAmount.IsPositive() && req.Amount.LessThan(lot.MinBetAmount) {
			res.fail("amount must be at least %s", lot.MinBetAmount)
		}
		if lot.MaxBetAmount.IsPositive() && req.Amount.GreaterThan(lot.MaxBetAmount) {
			res.fail("amount must be at most %s", lot.MaxBetAmount)
		}

		// 8. balance
		if v.funds != nil {
			if balance == nil {
				b, err := v.funds.Available(ctx, userID)
				if err != nil {
					return nil, fmt.Errorf("balance of %s: %w", userID, err)
				}
				balance = &b
			}
			cumulative = cumulative.Add(req.Amount)
			if cumulative.GreaterThan(*balance) {
				res.fail("insufficient balance: available %s, required %s", *balance, cumulative)
			}
		}

		results[i] = res
	}
	return results, nil
}

func (v *Validator) checkNumber(res *Result, lot lottery.Lottery, number string) bool {
	width := lot.NumberWidth()
	if err := v.validate.Var(number, fmt.Sprintf("required,numeric,len=%d", width)); err != nil || !lottery.IsDigits(number) {
		res.fail("number must have %d digits", width)
		return false
	}
	if !lot.InRange(number) {
		res.fail("number %s is outside the range %s-%s", number, lot.NumberRangeStart, lot.NumberRangeEnd)
		return false
	}
	return true
}

func (v *Validator) checkSeries(res *Result, lot lottery.Lottery, series string) bool {
	width := lot.SeriesWidthOrDefault()
	if series == "" {
		if lot.RequiresSeries {
			res.fail("series is required")
			return false
		}
		return true
	}
	if err := v.validate.Var(series, fmt.Sprintf("numeric,len=%d", width)); err != nil || !lottery.IsDigits(series) {
		res.fail("series must have %d digits", width)
		return false
	}
	if lot.RequiresSeries && !lot.SeriesAllowed(series) {
		res.fail("series %s is not available", series)
		return false
	}
	return true
}

func asFieldErrors(err error) validator.ValidationErrors {
	if fe, ok := err.(validator.ValidationErrors); ok {
		return fe
	}
	return nil
}

type mapPlanner struct {
	fractions map[string]int
	series    map[string]map[string]bool
}

func newPlanner() *mapPlanner {
	return &mapPlanner{fractions: map[string]int{}, series: map[string]map[string]bool{}}
}

func (p *mapPlanner) Planned(key lottery.CombinationKey) int { return p.fractions[key.String()] }

func (p *mapPlanner) PlannedInOtherSeries(key lottery.CombinationKey) bool {
	for series := range p.series[key.NumberSlot()] {
		if series != key.Series {
			return true
		}
	}
	return false
}

func (p *mapPlanner) Plan(key lottery.CombinationKey, fractions int) {
	p.fractions[key.String()] += fractions
	slot := key.NumberSlot()
	if p.series[slot] == nil {
		p.series[slot] = map[string]bool{}
	}
	p.series[slot][key.Series] = true
}
