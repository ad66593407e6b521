package lottery

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus is the settlement state of a bet. PENDING is the only
// non-terminal state.
type BetStatus string

const (
	BetPending   BetStatus = "PENDING"
	BetWon       BetStatus = "WON"
	BetLost      BetStatus = "LOST"
	BetPlayed    BetStatus = "PLAYED"
	BetCancelled BetStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s BetStatus) Terminal() bool {
	switch s {
	case BetWon, BetLost, BetPlayed, BetCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether s may move to next.
func (s BetStatus) CanTransition(next BetStatus) bool {
	return s == BetPending && next.Terminal()
}

// Bet is one user's purchase of fractions of a combination.
type Bet struct {
	ID        string          `json:"id" db:"id"`
	LotteryID string          `json:"lottery_id" db:"lottery_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	BatchID   string          `json:"batch_id,omitempty" db:"batch_id"`
	Number    string          `json:"number" db:"number"`
	Series    string          `json:"series" db:"series"`
	Fractions int             `json:"fractions" db:"fractions"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	DrawDate  time.Time       `json:"draw_date" db:"draw_date"`
	Status    BetStatus       `json:"status" db:"status"`
	WonAmount decimal.Decimal `json:"won_amount" db:"won_amount"`
	Details   WinningDetails  `json:"winning_details" db:"winning_details"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	SettledAt *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
}

func (b Bet) Key() CombinationKey {
	return CombinationKey{LotteryID: b.LotteryID, Number: b.Number, Series: b.Series, DrawDate: b.DrawDate}
}

// AwardedPrize is one matched tier in a settled bet.
type AwardedPrize struct {
	Kind        PrizeKind       `json:"kind"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Positions   []int           `json:"positions,omitempty"`
	Special     SpecialRule     `json:"special,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// WinningDetails is the settlement record persisted with a bet.
type WinningDetails struct {
	Matched       []PrizeKind     `json:"matched,omitempty"`
	Prizes        []AwardedPrize  `json:"prizes,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	WinningNumber string          `json:"winning_number,omitempty"`
	WinningSeries string          `json:"winning_series,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Empty reports whether nothing has been recorded.
func (d WinningDetails) Empty() bool {
	return len(d.Prizes) == 0 && d.Error == "" && d.WinningNumber == ""
}

func (d WinningDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *WinningDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = WinningDetails{}
		return nil
	case []byte:
		if len(v) == 0 {
			*d = WinningDetails{}
			return nil
		}
		return json.Unmarshal(v, d)
	case string:
		if v == "" {
			*d = WinningDetails{}
			return nil
		}
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into WinningDetails", src)
	}
}

// BetFilter narrows bet listings. Zero fields are ignored.
type BetFilter struct {
	UserID    string
	LotteryID string
	Status    BetStatus
	DrawDate  *time.Time
	From      *time.Time
	To        *time.Time
	Limit     int
}

// Matches applies the filter to one bet.
func (f BetFilter) Matches(b Bet) bool {
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if f.LotteryID != "" && b.LotteryID != f.LotteryID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.DrawDate != nil && !b.DrawDate.Equal(*f.DrawDate) {
		return false
	}
	if f.From != nil && b.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && b.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
