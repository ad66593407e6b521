package inventory

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
)

// Batch tracks the fractions one admission batch plans and reserves, per key.
// It is not safe for concurrent use; each batch owns its own tracker.
type Batch struct {
	svc       *Service
	planned   map[string]int
	series    map[string]map[string]bool
	committed map[string]int
	taken     []reservation
}

type reservation struct {
	key       lottery.CombinationKey
	fractions int
}

// NewBatch starts an empty batch.
func (s *Service) NewBatch() *Batch {
	return &Batch{
		svc:       s,
		planned:   make(map[string]int),
		series:    make(map[string]map[string]bool),
		committed: make(map[string]int),
	}
}

// Planned is the number of fractions earlier bets of the batch want for key.
func (b *Batch) Planned(key lottery.CombinationKey) int {
	return b.planned[key.String()]
}

// PlannedInOtherSeries reports whether an earlier bet of the batch plays the
// number of key in a different series of the same draw.
func (b *Batch) PlannedInOtherSeries(key lottery.CombinationKey) bool {
	for series := range b.series[key.NumberSlot()] {
		if series != key.Series {
			return true
		}
	}
	return false
}

// Plan records that the batch wants fractions of key.
func (b *Batch) Plan(key lottery.CombinationKey, fractions int) {
	b.planned[key.String()] += fractions
	slot := key.NumberSlot()
	if b.series[slot] == nil {
		b.series[slot] = make(map[string]bool)
	}
	b.series[slot][key.Series] = true
}

// Reserve reconciles the running counter with the persisted count and then
// reserves. A persisted count below what this batch already holds means the
// row changed underneath us and is reported as a conflict.
func (b *Batch) Reserve(ctx context.Context, lot lottery.Lottery, key lottery.CombinationKey, fractions int) (ReserveResult, error) {
	id := key.String()
	if held := b.committed[id]; held > 0 {
		used, err := b.svc.UsedFractions(ctx, key)
		if err != nil {
			return ReserveResult{}, err
		}
		if used < held {
			return ReserveResult{}, apperrors.Conflict("INVENTORY_DIVERGED",
				"inventory for %s changed during the batch (persisted %d, batch holds %d)", key.Label(), used, held)
		}
	}

	res, err := b.svc.Reserve(ctx, lot, key, fractions)
	if err != nil || !res.OK() {
		return res, err
	}
	b.committed[id] += fractions
	b.taken = append(b.taken, reservation{key: key, fractions: fractions})
	return res, nil
}

// Reserved is the number of fractions the batch currently holds for key.
func (b *Batch) Reserved(key lottery.CombinationKey) int {
	return b.committed[key.String()]
}

// Rollback releases every reservation of the batch, newest first. It keeps
// going after a failed release and returns all failures joined.
func (b *Batch) Rollback(ctx context.Context) error {
	var errs []error
	for i := len(b.taken) - 1; i >= 0; i-- {
		r := b.taken[i]
		if err := b.svc.Release(ctx, r.key, r.fractions); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", r.key.Label(), err))
			b.svc.log.WithError(err).WithField("combination", r.key.String()).Error("batch rollback release failed")
			continue
		}
		b.committed[r.key.String()] -= r.fractions
	}
	b.taken = nil
	return stderrors.Join(errs...)
}
