package lottery

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InventorySource records how a combination row came to exist.
type InventorySource string

const (
	// SourceUpload rows come from an admin supplied combination list.
	SourceUpload InventorySource = "upload"
	// SourceDerived rows are materialised on first reservation when the draw
	// has no uploaded list.
	SourceDerived InventorySource = "derived"
	// SourceResult rows exist only to carry a winner flag.
	SourceResult InventorySource = "result"
)

// CombinationKey identifies one sellable ticket of one draw.
type CombinationKey struct {
	LotteryID string    `json:"lottery_id"`
	Number    string    `json:"number"`
	Series    string    `json:"series"`
	DrawDate  time.Time `json:"draw_date"`
}

func (k CombinationKey) String() string {
	return fmt.Sprintf("%s:%s-%s@%s", k.LotteryID, k.Number, k.Series, k.DrawDate.Format("2006-01-02"))
}

// NumberSlot identifies the number of the key within its draw, whatever the
// series.
func (k CombinationKey) NumberSlot() string {
	return fmt.Sprintf("%s:%s@%s", k.LotteryID, k.Number, k.DrawDate.Format("2006-01-02"))
}

// Label is the human form used in messages, e.g. 1234-001.
func (k CombinationKey) Label() string {
	if k.Series == "" {
		return k.Number
	}
	return k.Number + "-" + k.Series
}

// Combination tracks sold fractions of one key. UsedFractions never leaves
// [0, TotalFractions].
type Combination struct {
	ID             string          `json:"id" db:"id"`
	LotteryID      string          `json:"lottery_id" db:"lottery_id"`
	Number         string          `json:"number" db:"number"`
	Series         string          `json:"series" db:"series"`
	DrawDate       time.Time       `json:"draw_date" db:"draw_date"`
	TotalFractions int             `json:"total_fractions" db:"total_fractions"`
	UsedFractions  int             `json:"used_fractions" db:"used_fractions"`
	Active         bool            `json:"is_active" db:"is_active"`
	Winner         bool            `json:"is_winner" db:"is_winner"`
	PrizeType      string          `json:"prize_type,omitempty" db:"prize_type"`
	PrizeAmount    decimal.Decimal `json:"prize_amount" db:"prize_amount"`
	Source         InventorySource `json:"source" db:"source"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

func (c Combination) Key() CombinationKey {
	return CombinationKey{LotteryID: c.LotteryID, Number: c.Number, Series: c.Series, DrawDate: c.DrawDate}
}

// Available is the number of fractions still for sale.
func (c Combination) Available() int {
	if !c.Active {
		return 0
	}
	if left := c.TotalFractions - c.UsedFractions; left > 0 {
		return left
	}
	return 0
}
