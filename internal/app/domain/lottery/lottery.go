// Package lottery holds the entities of the fractional number lottery: the
// lottery definition, its per-draw combination inventory, bets, prize plans
// and draw results.
package lottery

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

const (
	DefaultTimeZone    = "America/Bogota"
	DefaultNumberStart = "0000"
	DefaultNumberEnd   = "9999"
	DefaultSeriesWidth = 3
)

// DefaultClosingTime applies when a lottery does not set its own.
var DefaultClosingTime = TimeOfDay{Hour: 20}

// Lottery is a recurring weekly draw selling fractions of number+series tickets.
type Lottery struct {
	ID                    string          `json:"id" db:"id"`
	Code                  string          `json:"code" db:"code"`
	Name                  string          `json:"name" db:"name"`
	DrawDay               time.Weekday    `json:"draw_day" db:"draw_day"`
	DrawTime              TimeOfDay       `json:"draw_time" db:"draw_time"`
	ClosingTime           *TimeOfDay      `json:"closing_time" db:"closing_time"`
	TimeZone              string          `json:"time_zone" db:"time_zone"`
	FractionCount         int             `json:"fraction_count" db:"fraction_count"`
	FractionPrice         decimal.Decimal `json:"fraction_price" db:"fraction_price"`
	MajorPrizeAmount      decimal.Decimal `json:"major_prize_amount" db:"major_prize_amount"`
	MinBetAmount          decimal.Decimal `json:"min_bet_amount" db:"min_bet_amount"`
	MaxBetAmount          decimal.Decimal `json:"max_bet_amount" db:"max_bet_amount"`
	MaxFractionsPerBet    int             `json:"max_fractions_per_bet" db:"max_fractions_per_bet"`
	NumberRangeStart      string          `json:"number_range_start" db:"number_range_start"`
	NumberRangeEnd        string          `json:"number_range_end" db:"number_range_end"`
	SeriesWidth           int             `json:"series_width" db:"series_width"`
	RequiresSeries        bool            `json:"requires_series" db:"requires_series"`
	AvailableSeries       SeriesSet       `json:"available_series" db:"available_series"`
	AllowDuplicateNumbers bool            `json:"allow_duplicate_numbers" db:"allow_duplicate_numbers"`
	Active                bool            `json:"is_active" db:"is_active"`
	LastDrawNumber        int             `json:"last_draw_number" db:"last_draw_number"`
	NextDrawDate          *time.Time      `json:"next_draw_date,omitempty" db:"next_draw_date"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// Normalize fills defaults and clamps the per-bet fraction limit.
func (l *Lottery) Normalize() {
	if l.TimeZone == "" {
		l.TimeZone = DefaultTimeZone
	}
	if l.ClosingTime == nil {
		closing := DefaultClosingTime
		l.ClosingTime = &closing
	}
	if l.NumberRangeStart == "" {
		l.NumberRangeStart = DefaultNumberStart
	}
	if l.NumberRangeEnd == "" {
		l.NumberRangeEnd = DefaultNumberEnd
	}
	if l.SeriesWidth <= 0 {
		l.SeriesWidth = DefaultSeriesWidth
	}
	if l.MaxFractionsPerBet <= 0 || l.MaxFractionsPerBet > l.FractionCount {
		l.MaxFractionsPerBet = l.FractionCount
	}
}

// Validate checks the structural invariants of a lottery definition.
func (l Lottery) Validate() error {
	var problems []string
	if strings.TrimSpace(l.Code) == "" {
		problems = append(problems, "code is required")
	}
	if l.FractionCount < 1 {
		problems = append(problems, "fraction_count must be at least 1")
	}
	if !l.FractionPrice.IsPositive() {
		problems = append(problems, "fraction_price must be positive")
	}
	if l.MinBetAmount.IsNegative() || (l.MaxBetAmount.IsPositive() && l.MinBetAmount.GreaterThan(l.MaxBetAmount)) {
		problems = append(problems, "min_bet_amount must be between zero and max_bet_amount")
	}
	if l.DrawDay < time.Sunday || l.DrawDay > time.Saturday {
		problems = append(problems, "draw_day is not a weekday")
	}
	start, end := l.NumberRangeStart, l.NumberRangeEnd
	if !IsDigits(start) || !IsDigits(end) || len(start) != len(end) {
		problems = append(problems, "number range must be digit strings of equal width")
	} else if start > end {
		problems = append(problems, "number_range_start must not exceed number_range_end")
	}
	for _, s := range l.AvailableSeries {
		if !IsDigits(s) || len(s) != l.seriesWidth() {
			problems = append(problems, fmt.Sprintf("series %q must have %d digits", s, l.seriesWidth()))
		}
	}
	if _, err := time.LoadLocation(l.timeZone()); err != nil {
		problems = append(problems, fmt.Sprintf("unknown time zone %q", l.TimeZone))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid lottery %s: %s", l.Code, strings.Join(problems, "; "))
	}
	return nil
}

// NumberWidth is the digit count of every number in this lottery.
func (l Lottery) NumberWidth() int {
	if l.NumberRangeStart != "" {
		return len(l.NumberRangeStart)
	}
	return len(DefaultNumberStart)
}

// DefaultNumberWidth is the digit count of the default number range.
func DefaultNumberWidth() int { return len(DefaultNumberStart) }

func (l Lottery) seriesWidth() int {
	if l.SeriesWidth > 0 {
		return l.SeriesWidth
	}
	return DefaultSeriesWidth
}

// SeriesWidthOrDefault is the digit count of every series.
func (l Lottery) SeriesWidthOrDefault() int { return l.seriesWidth() }

func (l Lottery) timeZone() string {
	if l.TimeZone == "" {
		return DefaultTimeZone
	}
	return l.TimeZone
}

// Location resolves the lottery time zone, falling back to UTC.
func (l Lottery) Location() *time.Location {
	loc, err := time.LoadLocation(l.timeZone())
	if err != nil {
		return time.UTC
	}
	return loc
}

// Closing is the betting close time on the draw weekday. 00:00 is a valid
// setting that closes betting for the whole draw day.
func (l Lottery) Closing() TimeOfDay {
	if l.ClosingTime == nil {
		return DefaultClosingTime
	}
	return *l.ClosingTime
}

// BettingOpen reports whether bets are accepted at now. Betting closes on the
// draw weekday from the closing time onward, in the lottery time zone.
func (l Lottery) BettingOpen(now time.Time) bool {
	local := now.In(l.Location())
	if local.Weekday() != l.DrawDay {
		return true
	}
	return minutesOf(local) < l.Closing().Minutes()
}

// DrawDateAt is the calendar date of the draw a bet placed at now joins.
// Before closing on the draw weekday it is today, otherwise the next
// occurrence of the draw weekday.
func (l Lottery) DrawDateAt(now time.Time) time.Time {
	local := now.In(l.Location())
	days := (int(l.DrawDay) - int(local.Weekday()) + 7) % 7
	if days == 0 && minutesOf(local) >= l.Closing().Minutes() {
		days = 7
	}
	return DateOf(local.AddDate(0, 0, days))
}

// DaysUntilNextDraw counts calendar days to DrawDateAt.
func (l Lottery) DaysUntilNextDraw(now time.Time) int {
	today := DateOf(now.In(l.Location()))
	return int(l.DrawDateAt(now).Sub(today).Hours() / 24)
}

// InRange reports whether number lies within the configured number range.
func (l Lottery) InRange(number string) bool {
	start, end := l.NumberRangeStart, l.NumberRangeEnd
	if start == "" {
		start = DefaultNumberStart
	}
	if end == "" {
		end = DefaultNumberEnd
	}
	return len(number) == len(start) && number >= start && number <= end
}

// SeriesAllowed reports whether series is offered. An empty set allows all.
func (l Lottery) SeriesAllowed(series string) bool {
	if len(l.AvailableSeries) == 0 {
		return true
	}
	for _, s := range l.AvailableSeries {
		if s == series {
			return true
		}
	}
	return false
}

// ExpectedAmount is the price of the given fraction count.
func (l Lottery) ExpectedAmount(fractions int) decimal.Decimal {
	return l.FractionPrice.Mul(decimal.NewFromInt(int64(fractions)))
}

// DateOf truncates t to its calendar date in t's own location, expressed as
// midnight UTC so dates compare with ==.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsDigits reports whether s is a non-empty run of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// PadDigits left pads s with zeros to width.
func PadDigits(s string, width int) string {
	s = strings.TrimSpace(s)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func minutesOf(t time.Time) int { return t.Hour()*60 + t.Minute() }

// TimeOfDay is a wall clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// MustTimeOfDay panics on malformed input. Intended for literals.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) IsZero() bool   { return t.Hour == 0 && t.Minute == 0 }
func (t TimeOfDay) Minutes() int   { return t.Hour*60 + t.Minute }
func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value stores the time as HH:MM:SS.
func (t TimeOfDay) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", t.Hour, t.Minute), nil
}

// Scan reads TIME columns, which drivers hand back as text or time.Time.
func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = TimeOfDay{}
		return nil
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	case time.Time:
		*t = TimeOfDay{Hour: v.Hour(), Minute: v.Minute()}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

// SeriesSet is the list of series a lottery offers, stored as a comma
// separated text column.
type SeriesSet []string

func (s SeriesSet) Value() (driver.Value, error) {
	return strings.Join(s, ","), nil
}

func (s *SeriesSet) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into SeriesSet", src)
	}
	out := SeriesSet{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*s = out
	return nil
}
