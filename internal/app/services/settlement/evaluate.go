package settlement

import (
	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/prizes"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/shopspring/decimal"
)

// Evaluate resolves one bet against a draw result. Tiers are tried in the
// order major, seco, same-series approximation, different-series
// approximation. Major and seco wins end the evaluation; an approximation win
// may be joined by special prizes. An error means the bet could not be
// evaluated at all.
func Evaluate(lot lottery.Lottery, plan lottery.PrizePlan, result lottery.Result, bet lottery.Bet) (lottery.WinningDetails, error) {
	details := lottery.WinningDetails{
		TotalAmount:   decimal.Zero,
		WinningNumber: result.Number,
		WinningSeries: result.Series,
	}
	if !lottery.IsDigits(bet.Number) || len(bet.Number) != len(result.Number) {
		return details, apperrors.Processing(nil, "bet %s number %q cannot be compared with winning number %q", bet.ID, bet.Number, result.Number)
	}
	width := len(result.Number)
	sameSeries := !lot.RequiresSeries || bet.Series == result.Series

	// Major.
	if bet.Number == result.Number && sameSeries {
		if major, ok := prizes.Major(plan); ok {
			award(&details, major, bet, lot, "Full number", fullPositions(width))
			return details, nil
		}
	}

	// Seco.
	if entry, ok := matchingSeco(lot, result, bet); ok {
		if secos := prizes.Secos(plan); len(secos) > 0 {
			desc := "Seco"
			if entry.Label != "" {
				desc = "Seco " + entry.Label
			}
			award(&details, secos[0], bet, lot, desc, nil)
			return details, nil
		}
	}

	// Approximations. Only the best single match pays.
	var best *lottery.Prize
	var bestPositions []int
	for _, p := range prizes.Approximations(plan, sameSeries) {
		positions, ok := p.Type.Rule.ResolvedPositions(width)
		if !ok {
			return details, apperrors.Processing(nil, "prize %s has no position rule", p.DisplayName())
		}
		matched, err := matchPositions(bet.Number, result.Number, positions)
		if err != nil {
			return details, apperrors.Processing(err, "evaluate prize %s", p.DisplayName())
		}
		if matched && (best == nil || p.Amount.GreaterThan(best.Amount)) {
			p := p
			best = &p
			bestPositions = positions
		}
	}
	if best != nil {
		abs, _ := absolutePositions(bestPositions, width)
		award(&details, *best, bet, lot, DescribePositions(bestPositions, width), abs)
	}

	// Specials stack with each other and with an approximation.
	for _, p := range prizes.Specials(plan) {
		if p.Type.RequiresSeries && bet.Series != result.Series {
			continue
		}
		matched, err := matchSpecial(p.Type.Rule.Special, bet.Number, bet.Series, result.Number, result.Series)
		if err != nil {
			return details, apperrors.Processing(err, "evaluate prize %s", p.DisplayName())
		}
		if matched {
			award(&details, p, bet, lot, describeSpecial(p.Type.Rule.Special), nil)
			details.Prizes[len(details.Prizes)-1].Special = p.Type.Rule.Special
		}
	}
	return details, nil
}

// matchingSeco finds the seco entry the bet holds. Entries without a series
// match any series.
func matchingSeco(lot lottery.Lottery, result lottery.Result, bet lottery.Bet) (lottery.SecoPrize, bool) {
	for _, s := range result.Secos {
		if s.Number != bet.Number {
			continue
		}
		if !lot.RequiresSeries || s.Series == "" || s.Series == bet.Series {
			return s, true
		}
	}
	return lottery.SecoPrize{}, false
}

func award(d *lottery.WinningDetails, p lottery.Prize, bet lottery.Bet, lot lottery.Lottery, desc string, positions []int) {
	amount := p.Payout(bet.Fractions, lot.FractionCount)
	d.Matched = append(d.Matched, p.Type.Kind)
	d.Prizes = append(d.Prizes, lottery.AwardedPrize{
		Kind:        p.Type.Kind,
		Code:        p.Type.Code,
		Name:        p.DisplayName(),
		Description: desc,
		Positions:   positions,
		Amount:      amount,
	})
	d.TotalAmount = d.TotalAmount.Add(amount)
}

func fullPositions(width int) []int {
	out := make([]int, width)
	for i := range out {
		out[i] = i
	}
	return out
}
