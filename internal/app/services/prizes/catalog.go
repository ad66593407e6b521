// Package prizes is the prize catalog: which plan applies to a draw and which
// prizes of that plan belong to each settlement tier.
package prizes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
	"github.com/shopspring/decimal"
)

// Catalog reads and maintains prize plans.
type Catalog struct {
	store storage.PrizeStore
	log   *logger.Logger
}

// New constructs a catalog.
func New(store storage.PrizeStore, log *logger.Logger) *Catalog {
	if log == nil {
		log = logger.NewDefault("prizes")
	}
	return &Catalog{store: store, log: log}
}

// GetActivePlan returns the most recent active plan of the lottery covering
// asOf. A missing plan is a configuration error.
func (c *Catalog) GetActivePlan(ctx context.Context, lotteryID string, asOf time.Time) (lottery.PrizePlan, error) {
	plans, err := c.store.ListPlans(ctx, lotteryID)
	if err != nil {
		return lottery.PrizePlan{}, fmt.Errorf("list prize plans: %w", err)
	}
	for _, plan := range plans {
		if plan.Active && plan.Covers(asOf) {
			return plan, nil
		}
	}
	return lottery.PrizePlan{}, apperrors.Configuration("no active prize plan for lottery %s on %s", lotteryID, asOf.Format("2006-01-02"))
}

// CreatePrizeType registers a prize type after checking its rule payload.
func (c *Catalog) CreatePrizeType(ctx context.Context, pt lottery.PrizeType) (lottery.PrizeType, error) {
	pt.Code = strings.ToUpper(strings.TrimSpace(pt.Code))
	if pt.Code == "" {
		return lottery.PrizeType{}, apperrors.Validation("prize type code is required")
	}
	if err := validateType(pt, lottery.DefaultNumberWidth()); err != nil {
		return lottery.PrizeType{}, apperrors.Validation(err.Error())
	}
	created, err := c.store.CreatePrizeType(ctx, pt)
	if err != nil {
		return lottery.PrizeType{}, fmt.Errorf("create prize type: %w", err)
	}
	return created, nil
}

// PrizeType looks a type up by code.
func (c *Catalog) PrizeType(ctx context.Context, code string) (lottery.PrizeType, error) {
	pt, err := c.store.GetPrizeTypeByCode(ctx, strings.ToUpper(code))
	if errors.Is(err, storage.ErrNotFound) {
		return lottery.PrizeType{}, apperrors.NotFound("prize type", code)
	}
	return pt, err
}

// CreatePlan validates and stores a plan. An active plan supersedes every
// other plan of the lottery.
func (c *Catalog) CreatePlan(ctx context.Context, lot lottery.Lottery, plan lottery.PrizePlan) (lottery.PrizePlan, error) {
	plan.LotteryID = lot.ID
	plan.StartDate = lottery.DateOf(plan.StartDate)
	plan.Prizes = NormalizePrizes(plan.Prizes, lot.FractionCount)
	if err := ValidatePlan(plan, lot); err != nil {
		return lottery.PrizePlan{}, err
	}

	created, err := c.store.CreatePlan(ctx, plan)
	if err != nil {
		return lottery.PrizePlan{}, fmt.Errorf("create prize plan: %w", err)
	}
	if created.Active {
		if err := c.store.DeactivatePlans(ctx, lot.ID, created.ID); err != nil {
			return lottery.PrizePlan{}, fmt.Errorf("deactivate previous plans: %w", err)
		}
	}

	c.log.WithField("plan_id", created.ID).
		WithField("lottery", lot.Code).
		WithField("prizes", len(created.Prizes)).
		Info("prize plan created")
	return created, nil
}

// UpdatePlan replaces a plan that has not been settled against.
func (c *Catalog) UpdatePlan(ctx context.Context, lot lottery.Lottery, plan lottery.PrizePlan) (lottery.PrizePlan, error) {
	existing, err := c.store.GetPlan(ctx, plan.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return lottery.PrizePlan{}, apperrors.NotFound("prize plan", plan.ID)
	}
	if err != nil {
		return lottery.PrizePlan{}, fmt.Errorf("load prize plan: %w", err)
	}
	if existing.Locked() {
		return lottery.PrizePlan{}, apperrors.Conflict("PLAN_LOCKED", "prize plan %s has been settled against and can no longer change", plan.ID)
	}

	plan.LotteryID = lot.ID
	plan.SettledAt = nil
	plan.Prizes = NormalizePrizes(plan.Prizes, lot.FractionCount)
	if err := ValidatePlan(plan, lot); err != nil {
		return lottery.PrizePlan{}, err
	}
	updated, err := c.store.UpdatePlan(ctx, plan)
	if err != nil {
		return lottery.PrizePlan{}, fmt.Errorf("update prize plan: %w", err)
	}
	if updated.Active {
		if err := c.store.DeactivatePlans(ctx, lot.ID, updated.ID); err != nil {
			return lottery.PrizePlan{}, fmt.Errorf("deactivate previous plans: %w", err)
		}
	}
	return updated, nil
}

// ActivatePlan makes planID the only active plan of its lottery.
func (c *Catalog) ActivatePlan(ctx context.Context, planID string) (lottery.PrizePlan, error) {
	plan, err := c.store.GetPlan(ctx, planID)
	if errors.Is(err, storage.ErrNotFound) {
		return lottery.PrizePlan{}, apperrors.NotFound("prize plan", planID)
	}
	if err != nil {
		return lottery.PrizePlan{}, fmt.Errorf("load prize plan: %w", err)
	}
	if !plan.Active {
		plan.Active = true
		if plan, err = c.store.UpdatePlan(ctx, plan); err != nil {
			return lottery.PrizePlan{}, fmt.Errorf("activate prize plan: %w", err)
		}
	}
	if err := c.store.DeactivatePlans(ctx, plan.LotteryID, plan.ID); err != nil {
		return lottery.PrizePlan{}, fmt.Errorf("deactivate previous plans: %w", err)
	}
	return plan, nil
}

// LockPlan freezes a plan after a draw has been settled against it.
func (c *Catalog) LockPlan(ctx context.Context, planID string, at time.Time) error {
	if err := c.store.LockPlan(ctx, planID, at); err != nil {
		return fmt.Errorf("lock prize plan %s: %w", planID, err)
	}
	return nil
}

// NewPrize builds a prize with its per-fraction amount precomputed.
func NewPrize(pt lottery.PrizeType, name string, amount decimal.Decimal, fractionCount int) lottery.Prize {
	p := lottery.Prize{Type: pt, Name: name, Amount: amount, Quantity: 1}
	if fractionCount > 0 {
		p.FractionAmount = amount.Div(decimal.NewFromInt(int64(fractionCount))).Round(2)
	}
	return p
}

// NormalizePrizes fills missing per-fraction amounts and quantities and
// assigns display order where none was given.
func NormalizePrizes(prizes []lottery.Prize, fractionCount int) []lottery.Prize {
	out := make([]lottery.Prize, len(prizes))
	for i, p := range prizes {
		if p.FractionAmount.IsZero() && fractionCount > 0 {
			p.FractionAmount = p.Amount.Div(decimal.NewFromInt(int64(fractionCount))).Round(2)
		}
		if p.Quantity <= 0 {
			p.Quantity = 1
		}
		if p.Order == 0 {
			p.Order = i + 1
		}
		out[i] = p
	}
	return out
}

// ValidatePlan checks a plan against the lottery it pays out for.
func ValidatePlan(plan lottery.PrizePlan, lot lottery.Lottery) error {
	var problems []string
	if lot.FractionCount < 1 {
		problems = append(problems, "lottery fraction_count must be at least 1")
	}
	if !lot.FractionPrice.IsPositive() {
		problems = append(problems, "lottery fraction_price must be positive")
	}
	if len(plan.Prizes) == 0 {
		problems = append(problems, "plan has no prizes")
	}
	if plan.EndDate != nil && plan.EndDate.Before(plan.StartDate) {
		problems = append(problems, "end_date precedes start_date")
	}

	majors := 0
	for _, p := range plan.Prizes {
		label := p.DisplayName()
		if p.Type.Kind == lottery.KindMajor {
			majors++
		}
		if !p.Amount.IsPositive() {
			problems = append(problems, fmt.Sprintf("prize %s: amount must be positive", label))
		}
		if !p.FractionAmount.IsPositive() {
			problems = append(problems, fmt.Sprintf("prize %s: fraction_amount must be positive", label))
		}
		if err := validateType(p.Type, lot.NumberWidth()); err != nil {
			problems = append(problems, fmt.Sprintf("prize %s: %v", label, err))
		}
	}
	if majors > 1 {
		problems = append(problems, "plan has more than one major prize")
	}

	if len(problems) > 0 {
		return apperrors.Configuration("invalid prize plan %s: %s", plan.Name, strings.Join(problems, "; "))
	}
	return nil
}

func validateType(pt lottery.PrizeType, width int) error {
	if !pt.Kind.Valid() {
		return fmt.Errorf("unknown prize kind %q", pt.Kind)
	}
	switch {
	case pt.Kind.IsApproximation():
		positions, ok := pt.Rule.ResolvedPositions(width)
		if !ok {
			return fmt.Errorf("approximation %s has no positions or pattern", pt.Code)
		}
		for _, p := range positions {
			if p >= width || p < -width {
				return fmt.Errorf("position %d out of range for %d digits", p, width)
			}
		}
	case pt.Kind == lottery.KindSpecial:
		if !pt.Rule.Special.Valid() {
			return fmt.Errorf("special %s has unknown rule %q", pt.Code, pt.Rule.Special)
		}
	}
	return nil
}

// =============================================================================
// Tier lookups
// =============================================================================

// Major returns the major prize of the plan.
func Major(plan lottery.PrizePlan) (lottery.Prize, bool) {
	for _, p := range ordered(plan.Prizes) {
		if p.Type.Kind == lottery.KindMajor {
			return p, true
		}
	}
	return lottery.Prize{}, false
}

// Secos returns the seco prizes, highest amount first.
func Secos(plan lottery.PrizePlan) []lottery.Prize {
	out := ofKind(plan.Prizes, lottery.KindSeco)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.GreaterThan(out[j].Amount) })
	return out
}

// Approximations returns the same-series or different-series approximation
// prizes in plan order.
func Approximations(plan lottery.PrizePlan, sameSeries bool) []lottery.Prize {
	if sameSeries {
		return ofKind(plan.Prizes, lottery.KindApproxSameSeries)
	}
	return ofKind(plan.Prizes, lottery.KindApproxDiffSeries)
}

// Specials returns the special prizes in plan order.
func Specials(plan lottery.PrizePlan) []lottery.Prize {
	return ofKind(plan.Prizes, lottery.KindSpecial)
}

func ofKind(prizes []lottery.Prize, kind lottery.PrizeKind) []lottery.Prize {
	var out []lottery.Prize
	for _, p := range ordered(prizes) {
		if p.Type.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func ordered(prizes []lottery.Prize) []lottery.Prize {
	out := make([]lottery.Prize, len(prizes))
	copy(out, prizes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
