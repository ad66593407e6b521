package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type comboRow struct {
	mu sync.Mutex
	c  lottery.Combination
}

func (r *comboRow) snapshot() lottery.Combination {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.c
}

// CombinationStore implementation ---------------------------------------------

func (s *Store) ReserveFractions(_ context.Context, req storage.ReserveRequest) (storage.ReserveOutcome, error) {
	if req.Fractions <= 0 {
		return storage.ReserveOutcome{}, fmt.Errorf("reserve %s: fractions must be positive", req.Key)
	}

	row := s.rowForReserve(req)
	if row == nil {
		return storage.ReserveOutcome{Eligible: false}, nil
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	if !row.c.Active {
		return storage.ReserveOutcome{Eligible: false, Combination: row.c}, nil
	}
	if row.c.UsedFractions+req.Fractions > row.c.TotalFractions {
		return storage.ReserveOutcome{Eligible: true, Available: row.c.Available(), Combination: row.c}, nil
	}

	row.c.UsedFractions += req.Fractions
	row.c.UpdatedAt = s.now()
	return storage.ReserveOutcome{
		Reserved:    true,
		Eligible:    true,
		Available:   row.c.Available(),
		Combination: row.c,
	}, nil
}

// rowForReserve finds the row for a key, materialising a derived row when the
// draw has no uploaded list. It returns nil when the key is not offered.
func (s *Store) rowForReserve(req storage.ReserveRequest) *comboRow {
	id := req.Key.String()
	dk := drawKey(req.Key.LotteryID, req.Key.DrawDate)

	s.comboMu.RLock()
	row, ok := s.combos[id]
	uploaded := s.uploaded[dk]
	s.comboMu.RUnlock()
	if ok {
		return row
	}
	if uploaded {
		return nil
	}

	used := s.sumPending(req.Key)

	s.comboMu.Lock()
	defer s.comboMu.Unlock()
	if row, ok := s.combos[id]; ok {
		return row
	}
	if s.uploaded[dk] {
		return nil
	}
	if used > req.Capacity {
		used = req.Capacity
	}
	now := s.now()
	row = &comboRow{c: lottery.Combination{
		ID:             uuid.NewString(),
		LotteryID:      req.Key.LotteryID,
		Number:         req.Key.Number,
		Series:         req.Key.Series,
		DrawDate:       req.Key.DrawDate,
		TotalFractions: req.Capacity,
		UsedFractions:  used,
		Active:         true,
		Source:         lottery.SourceDerived,
		CreatedAt:      now,
		UpdatedAt:      now,
	}}
	s.combos[id] = row
	return row
}

func (s *Store) ReleaseFractions(_ context.Context, key lottery.CombinationKey, fractions int) error {
	s.comboMu.RLock()
	row, ok := s.combos[key.String()]
	s.comboMu.RUnlock()
	if !ok {
		return storage.ErrNotFound
	}

	row.mu.Lock()
	defer row.mu.Unlock()
	row.c.UsedFractions -= fractions
	if row.c.UsedFractions < 0 {
		row.c.UsedFractions = 0
	}
	row.c.UpdatedAt = s.now()
	return nil
}

func (s *Store) GetCombination(_ context.Context, key lottery.CombinationKey) (lottery.Combination, error) {
	s.comboMu.RLock()
	row, ok := s.combos[key.String()]
	s.comboMu.RUnlock()
	if !ok {
		return lottery.Combination{}, storage.ErrNotFound
	}
	return row.snapshot(), nil
}

func (s *Store) HasUploadedInventory(_ context.Context, lotteryID string, drawDate time.Time) (bool, error) {
	s.comboMu.RLock()
	defer s.comboMu.RUnlock()
	return s.uploaded[drawKey(lotteryID, drawDate)], nil
}

func (s *Store) ReplaceCombinations(_ context.Context, lotteryID string, drawDate time.Time, rows []lottery.Combination) (storage.RefreshStats, error) {
	s.comboMu.Lock()
	defer s.comboMu.Unlock()

	var stats storage.RefreshStats
	now := s.now()
	incoming := make(map[string]lottery.Combination, len(rows))
	for _, c := range rows {
		c.LotteryID = lotteryID
		c.DrawDate = drawDate
		incoming[c.Key().String()] = c
	}

	for id, row := range s.combos {
		row.mu.Lock()
		if row.c.LotteryID == lotteryID && row.c.DrawDate.Equal(drawDate) && row.c.Active {
			if _, keep := incoming[id]; !keep {
				row.c.Active = false
				row.c.UpdatedAt = now
				stats.Deactivated++
			}
		}
		row.mu.Unlock()
	}

	for id, c := range incoming {
		if row, ok := s.combos[id]; ok {
			row.mu.Lock()
			if !row.c.Active {
				stats.Reactivated++
			}
			row.c.Active = true
			row.c.Source = lottery.SourceUpload
			row.c.TotalFractions = c.TotalFractions
			if row.c.TotalFractions < row.c.UsedFractions {
				row.c.TotalFractions = row.c.UsedFractions
			}
			row.c.UpdatedAt = now
			row.mu.Unlock()
			continue
		}
		c.ID = uuid.NewString()
		c.Active = true
		c.Source = lottery.SourceUpload
		c.CreatedAt = now
		c.UpdatedAt = now
		s.combos[id] = &comboRow{c: c}
		stats.Inserted++
	}

	s.uploaded[drawKey(lotteryID, drawDate)] = true
	return stats, nil
}

func (s *Store) ListCombinations(_ context.Context, lotteryID string, drawDate time.Time, series string) ([]lottery.Combination, error) {
	s.comboMu.RLock()
	rows := make([]*comboRow, 0, len(s.combos))
	for _, row := range s.combos {
		rows = append(rows, row)
	}
	s.comboMu.RUnlock()

	var out []lottery.Combination
	for _, row := range rows {
		c := row.snapshot()
		if c.LotteryID != lotteryID || !c.DrawDate.Equal(drawDate) {
			continue
		}
		if series != "" && c.Series != series {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].Series < out[j].Series
	})
	return out, nil
}

func (s *Store) MarkWinner(_ context.Context, key lottery.CombinationKey, prizeType string, amount decimal.Decimal, capacity int) error {
	id := key.String()

	s.comboMu.Lock()
	row, ok := s.combos[id]
	if !ok {
		now := s.now()
		row = &comboRow{c: lottery.Combination{
			ID:             uuid.NewString(),
			LotteryID:      key.LotteryID,
			Number:         key.Number,
			Series:         key.Series,
			DrawDate:       key.DrawDate,
			TotalFractions: capacity,
			Source:         lottery.SourceResult,
			CreatedAt:      now,
			UpdatedAt:      now,
		}}
		s.combos[id] = row
	}
	s.comboMu.Unlock()

	row.mu.Lock()
	defer row.mu.Unlock()
	row.c.Winner = true
	row.c.PrizeType = prizeType
	row.c.PrizeAmount = amount
	row.c.UpdatedAt = s.now()
	return nil
}
