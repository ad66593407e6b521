// Package inventory guards the fixed fraction count of every number and series
// combination. Reservations are atomic per key and never oversell.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/metrics"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
	"github.com/shopspring/decimal"
)

// AvailabilityCache holds advisory availability counts. Reservations never
// consult it.
type AvailabilityCache interface {
	GetAvailable(ctx context.Context, key string) (int, bool, error)
	SetAvailable(ctx context.Context, key string, available int) error
	Invalidate(ctx context.Context, key string) error
}

// ReserveStatus is the outcome of a reservation attempt.
type ReserveStatus string

const (
	StatusReserved ReserveStatus = "reserved"
	StatusRejected ReserveStatus = "rejected"
)

// ReserveResult is returned for every reservation attempt that reached the
// store. Expected rejections are results, not errors.
type ReserveResult struct {
	Status      ReserveStatus
	Available   int
	Reason      string
	Combination lottery.Combination
}

// OK reports whether the fractions were reserved.
func (r ReserveResult) OK() bool { return r.Status == StatusReserved }

// Service is the combination inventory.
type Service struct {
	combos storage.CombinationStore
	bets   storage.BetStore
	cache  AvailabilityCache
	log    *logger.Logger
}

// Option configures the service.
type Option func(*Service)

// WithCache enables the advisory availability cache.
func WithCache(c AvailabilityCache) Option {
	return func(s *Service) { s.cache = c }
}

// New constructs the inventory service.
func New(combos storage.CombinationStore, bets storage.BetStore, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("inventory")
	}
	s := &Service{combos: combos, bets: bets, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AvailableMessage renders a remaining count, e.g. "1 fraction available".
func AvailableMessage(n int) string {
	if n == 1 {
		return "1 fraction available"
	}
	return fmt.Sprintf("%d fractions available", n)
}

// Reserve atomically takes fractions of key, or rejects without any change.
func (s *Service) Reserve(ctx context.Context, lot lottery.Lottery, key lottery.CombinationKey, fractions int) (ReserveResult, error) {
	if fractions <= 0 {
		return ReserveResult{}, apperrors.Validation("fractions must be at least 1")
	}

	start := time.Now()
	out, err := s.combos.ReserveFractions(ctx, storage.ReserveRequest{
		Key:       key,
		Fractions: fractions,
		Capacity:  lot.FractionCount,
	})
	if err != nil {
		metrics.RecordReservation("error", time.Since(start))
		return ReserveResult{}, fmt.Errorf("reserve %s: %w", key, err)
	}
	s.invalidate(ctx, key)

	switch {
	case !out.Eligible:
		metrics.RecordReservation("ineligible", time.Since(start))
		return ReserveResult{
			Status: StatusRejected,
			Reason: fmt.Sprintf("combination %s is not offered for the %s draw", key.Label(), key.DrawDate.Format("2006-01-02")),
		}, nil
	case !out.Reserved:
		metrics.RecordReservation("rejected", time.Since(start))
		return ReserveResult{
			Status:      StatusRejected,
			Available:   out.Available,
			Reason:      AvailableMessage(out.Available),
			Combination: out.Combination,
		}, nil
	}

	metrics.RecordReservation("reserved", time.Since(start))
	s.log.WithField("combination", key.String()).
		WithField("fractions", fractions).
		WithField("remaining", out.Available).
		Debug("fractions reserved")
	return ReserveResult{Status: StatusReserved, Available: out.Available, Combination: out.Combination}, nil
}

// Release returns fractions previously reserved for key.
func (s *Service) Release(ctx context.Context, key lottery.CombinationKey, fractions int) error {
	if fractions <= 0 {
		return nil
	}
	if err := s.combos.ReleaseFractions(ctx, key, fractions); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	s.invalidate(ctx, key)
	s.log.WithField("combination", key.String()).
		WithField("fractions", fractions).
		Debug("fractions released")
	return nil
}

// AvailableFractions is an advisory read of the remaining fractions of key.
func (s *Service) AvailableFractions(ctx context.Context, lot lottery.Lottery, key lottery.CombinationKey) (int, error) {
	if s.cache != nil {
		if n, ok, err := s.cache.GetAvailable(ctx, key.String()); err == nil && ok {
			return n, nil
		} else if err != nil {
			s.log.WithError(err).Debug("availability cache read")
		}
	}

	n, err := s.availableFromStore(ctx, lot, key)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.SetAvailable(ctx, key.String(), n); err != nil {
			s.log.WithError(err).Debug("availability cache write")
		}
	}
	return n, nil
}

func (s *Service) availableFromStore(ctx context.Context, lot lottery.Lottery, key lottery.CombinationKey) (int, error) {
	combo, err := s.combos.GetCombination(ctx, key)
	if err == nil {
		return combo.Available(), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("load combination %s: %w", key, err)
	}

	uploaded, err := s.combos.HasUploadedInventory(ctx, key.LotteryID, key.DrawDate)
	if err != nil {
		return 0, fmt.Errorf("check inventory for %s: %w", key, err)
	}
	if uploaded {
		return 0, nil
	}

	used, err := s.bets.SumPendingFractions(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("sum pending fractions for %s: %w", key, err)
	}
	if left := lot.FractionCount - used; left > 0 {
		return left, nil
	}
	return 0, nil
}

// UsedFractions is the persisted used count of key, zero when no row exists.
func (s *Service) UsedFractions(ctx context.Context, key lottery.CombinationKey) (int, error) {
	combo, err := s.combos.GetCombination(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load combination %s: %w", key, err)
	}
	return combo.UsedFractions, nil
}

// MarkWinner flags key as a winning ticket. Safe to repeat.
func (s *Service) MarkWinner(ctx context.Context, lot lottery.Lottery, key lottery.CombinationKey, prizeType string, amount decimal.Decimal) error {
	if err := s.combos.MarkWinner(ctx, key, prizeType, amount, lot.FractionCount); err != nil {
		return fmt.Errorf("mark winner %s: %w", key, err)
	}
	s.invalidate(ctx, key)
	return nil
}

// Availability is one sellable combination in a listing.
type Availability struct {
	Number    string `json:"number"`
	Series    string `json:"series"`
	Available int    `json:"available"`
}

// ListAvailable lists combinations of a series that still have fractions for
// the draw. Without an uploaded list every number in the lottery range is
// offered unless it has been sold out.
func (s *Service) ListAvailable(ctx context.Context, lot lottery.Lottery, series string, drawDate time.Time) ([]Availability, error) {
	rows, err := s.combos.ListCombinations(ctx, lot.ID, drawDate, series)
	if err != nil {
		return nil, fmt.Errorf("list combinations: %w", err)
	}
	uploaded, err := s.combos.HasUploadedInventory(ctx, lot.ID, drawDate)
	if err != nil {
		return nil, fmt.Errorf("check inventory: %w", err)
	}

	if uploaded {
		out := make([]Availability, 0, len(rows))
		for _, c := range rows {
			if c.Source == lottery.SourceUpload && c.Available() > 0 {
				out = append(out, Availability{Number: c.Number, Series: c.Series, Available: c.Available()})
			}
		}
		return out, nil
	}

	known := make(map[string]int, len(rows))
	for _, c := range rows {
		if c.Source != lottery.SourceResult {
			known[c.Number] = c.Available()
		}
	}
	numbers, err := numberRange(lot)
	if err != nil {
		return nil, err
	}
	out := make([]Availability, 0, len(numbers))
	for _, n := range numbers {
		left, seen := known[n]
		if !seen {
			left = lot.FractionCount
		}
		if left > 0 {
			out = append(out, Availability{Number: n, Series: series, Available: left})
		}
	}
	return out, nil
}

// Refresh replaces the offered combinations of one draw. Rows not listed are
// deactivated; listed rows keep their used count.
func (s *Service) Refresh(ctx context.Context, lot lottery.Lottery, drawDate time.Time, entries []Entry) (storage.RefreshStats, error) {
	rows := make([]lottery.Combination, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, lottery.Combination{
			LotteryID:      lot.ID,
			Number:         e.Number,
			Series:         e.Series,
			DrawDate:       drawDate,
			TotalFractions: lot.FractionCount,
		})
	}
	stats, err := s.combos.ReplaceCombinations(ctx, lot.ID, drawDate, rows)
	if err != nil {
		return storage.RefreshStats{}, fmt.Errorf("replace combinations: %w", err)
	}
	s.log.WithField("lottery", lot.Code).
		WithField("draw_date", drawDate.Format("2006-01-02")).
		WithField("inserted", stats.Inserted).
		WithField("reactivated", stats.Reactivated).
		WithField("deactivated", stats.Deactivated).
		Info("combination inventory refreshed")
	return stats, nil
}

func (s *Service) invalidate(ctx context.Context, key lottery.CombinationKey) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, key.String()); err != nil {
		s.log.WithError(err).WithField("combination", key.String()).Debug("availability cache invalidate")
	}
}

func numberRange(lot lottery.Lottery) ([]string, error) {
	start, end := lot.NumberRangeStart, lot.NumberRangeEnd
	if start == "" {
		start = lottery.DefaultNumberStart
	}
	if end == "" {
		end = lottery.DefaultNumberEnd
	}
	var lo, hi int
	if _, err := fmt.Sscanf(start, "%d", &lo); err != nil {
		return nil, apperrors.Configuration("lottery %s has invalid number_range_start %q", lot.Code, start)
	}
	if _, err := fmt.Sscanf(end, "%d", &hi); err != nil {
		return nil, apperrors.Configuration("lottery %s has invalid number_range_end %q", lot.Code, end)
	}
	if hi < lo {
		return nil, apperrors.Configuration("lottery %s has an empty number range", lot.Code)
	}
	width := len(start)
	out := make([]string, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		out = append(out, fmt.Sprintf("%0*d", width, n))
	}
	return out, nil
}
