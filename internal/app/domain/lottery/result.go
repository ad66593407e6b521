package lottery

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SecoPrize is one secondary winning number of a draw.
type SecoPrize struct {
	Number string `json:"numero"`
	Series string `json:"serie,omitempty"`
	Label  string `json:"label,omitempty"`
}

// SecoList is stored as a JSON column.
type SecoList []SecoPrize

func (s SecoList) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *SecoList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into SecoList", src)
	}
}

// Result is the official outcome of one draw. There is at most one result per
// lottery and draw date.
type Result struct {
	ID        string     `json:"id" db:"id"`
	LotteryID string     `json:"lottery_id" db:"lottery_id"`
	DrawDate  time.Time  `json:"draw_date" db:"draw_date"`
	Number    string     `json:"number" db:"number"`
	Series    string     `json:"series" db:"series"`
	Secos     SecoList   `json:"secos" db:"secos"`
	SettledAt *time.Time `json:"settled_at,omitempty" db:"settled_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// SameOutcome compares the drawn numbers of two results for one draw.
func (r Result) SameOutcome(other Result) bool {
	if r.Number != other.Number || r.Series != other.Series || len(r.Secos) != len(other.Secos) {
		return false
	}
	for i := range r.Secos {
		if r.Secos[i].Number != other.Secos[i].Number || r.Secos[i].Series != other.Secos[i].Series {
			return false
		}
	}
	return true
}

// MajorKey is the inventory key of the winning ticket.
func (r Result) MajorKey() CombinationKey {
	return CombinationKey{LotteryID: r.LotteryID, Number: r.Number, Series: r.Series, DrawDate: r.DrawDate}
}
