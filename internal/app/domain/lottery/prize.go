package lottery

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PrizeKind is the tier a prize type belongs to. Settlement walks the tiers in
// the order MAJOR, SECO, APPROX_SAME_SERIES, APPROX_DIFF_SERIES and evaluates
// SPECIAL independently.
type PrizeKind string

const (
	KindMajor            PrizeKind = "MAJOR"
	KindSeco             PrizeKind = "SECO"
	KindApproxSameSeries PrizeKind = "APPROX_SAME_SERIES"
	KindApproxDiffSeries PrizeKind = "APPROX_DIFF_SERIES"
	KindSpecial          PrizeKind = "SPECIAL"
)

func (k PrizeKind) Valid() bool {
	switch k {
	case KindMajor, KindSeco, KindApproxSameSeries, KindApproxDiffSeries, KindSpecial:
		return true
	default:
		return false
	}
}

// IsApproximation reports whether the kind carries a digit position rule.
func (k PrizeKind) IsApproximation() bool {
	return k == KindApproxSameSeries || k == KindApproxDiffSeries
}

// Pattern names a canonical digit position set.
type Pattern string

const (
	PatternFirstThree      Pattern = "FIRST_THREE"
	PatternLastThree       Pattern = "LAST_THREE"
	PatternFirstTwo        Pattern = "FIRST_TWO"
	PatternLastTwo         Pattern = "LAST_TWO"
	PatternFirstTwoLastOne Pattern = "FIRST_TWO_LAST_ONE"
	PatternFirstOneLastTwo Pattern = "FIRST_ONE_LAST_TWO"
	PatternCenterTwo       Pattern = "TWO_CENTER"
	PatternLastOne         Pattern = "LAST_ONE"
	PatternFull            Pattern = "FULL"
)

var patternPositions = map[Pattern][]int{
	PatternFirstThree:      {0, 1, 2},
	PatternLastThree:       {-3, -2, -1},
	PatternFirstTwo:        {0, 1},
	PatternLastTwo:         {-2, -1},
	PatternFirstTwoLastOne: {0, 1, -1},
	PatternFirstOneLastTwo: {0, -2, -1},
	PatternCenterTwo:       {1, 2},
	PatternLastOne:         {-1},
}

// Positions returns the canonical position set of a named pattern for numbers
// of width digits. FULL covers every digit of that width.
func (p Pattern) Positions(width int) ([]int, bool) {
	if p == PatternFull {
		if width <= 0 {
			return nil, false
		}
		out := make([]int, width)
		for i := range out {
			out[i] = i
		}
		return out, true
	}
	pos, ok := patternPositions[p]
	if !ok {
		return nil, false
	}
	out := make([]int, len(pos))
	copy(out, pos)
	return out, true
}

// SpecialRule names a non positional special prize condition.
type SpecialRule string

const (
	// SpecialInverted matches the winning number read backwards.
	SpecialInverted SpecialRule = "INVERTED"
	// SpecialCombined matches any permutation of the winning digits.
	SpecialCombined SpecialRule = "COMBINED"
	// SpecialPrevious matches the winning number minus one.
	SpecialPrevious SpecialRule = "PREVIOUS"
	// SpecialNext matches the winning number plus one.
	SpecialNext SpecialRule = "NEXT"
	// SpecialSeriesOnly matches the winning series regardless of number.
	SpecialSeriesOnly SpecialRule = "SERIES"
)

func (r SpecialRule) Valid() bool {
	switch r {
	case SpecialInverted, SpecialCombined, SpecialPrevious, SpecialNext, SpecialSeriesOnly:
		return true
	default:
		return false
	}
}

// MatchRule is the payload of a prize type. Approximations use Positions
// (0-indexed from the left, negative from the right) or a named Pattern;
// specials use Special.
type MatchRule struct {
	Positions []int       `json:"positions,omitempty"`
	Pattern   Pattern     `json:"pattern,omitempty"`
	Special   SpecialRule `json:"special,omitempty"`
}

// ResolvedPositions prefers explicit positions over the named pattern, which
// is resolved against numbers of width digits.
func (r MatchRule) ResolvedPositions(width int) ([]int, bool) {
	if len(r.Positions) > 0 {
		out := make([]int, len(r.Positions))
		copy(out, r.Positions)
		return out, true
	}
	if r.Pattern != "" {
		return r.Pattern.Positions(width)
	}
	return nil, false
}

func (r MatchRule) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *MatchRule) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = MatchRule{}
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("cannot scan %T into MatchRule", src)
	}
}

// PrizeType describes how a prize is matched.
type PrizeType struct {
	ID             string    `json:"id" db:"id"`
	Code           string    `json:"code" db:"code"`
	Name           string    `json:"name" db:"name"`
	Kind           PrizeKind `json:"kind" db:"kind"`
	Rule           MatchRule `json:"match_rule" db:"match_rule"`
	RequiresSeries bool      `json:"requires_series" db:"requires_series"`
}

// Prize is one entry of a prize plan.
type Prize struct {
	ID             string          `json:"id" db:"id"`
	PlanID         string          `json:"plan_id" db:"plan_id"`
	Type           PrizeType       `json:"type" db:"-"`
	Name           string          `json:"name" db:"name"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	FractionAmount decimal.Decimal `json:"fraction_amount" db:"fraction_amount"`
	Quantity       int             `json:"quantity" db:"quantity"`
	Order          int             `json:"order" db:"sort_order"`
}

// DisplayName falls back to the type name.
func (p Prize) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Type.Name != "" {
		return p.Type.Name
	}
	return p.Type.Code
}

// Payout is the amount a bet of the given fraction count wins. Holding every
// fraction pays the full amount.
func (p Prize) Payout(fractions, fractionCount int) decimal.Decimal {
	if fractions <= 0 {
		return decimal.Zero
	}
	if fractions >= fractionCount {
		return p.Amount
	}
	return p.FractionAmount.Mul(decimal.NewFromInt(int64(fractions)))
}

// PrizePlan is the set of prizes offered for a lottery over a date range.
type PrizePlan struct {
	ID           string     `json:"id" db:"id"`
	LotteryID    string     `json:"lottery_id" db:"lottery_id"`
	Name         string     `json:"name" db:"name"`
	SorteoNumber int        `json:"sorteo_number" db:"sorteo_number"`
	StartDate    time.Time  `json:"start_date" db:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty" db:"end_date"`
	Active       bool       `json:"is_active" db:"is_active"`
	SettledAt    *time.Time `json:"settled_at,omitempty" db:"settled_at"`
	Prizes       []Prize    `json:"prizes" db:"-"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Covers reports whether the plan applies on date.
func (p PrizePlan) Covers(date time.Time) bool {
	d := DateOf(date)
	if DateOf(p.StartDate).After(d) {
		return false
	}
	return p.EndDate == nil || !DateOf(*p.EndDate).Before(d)
}

// Locked plans have been settled against and may no longer change.
func (p PrizePlan) Locked() bool { return p.SettledAt != nil }
