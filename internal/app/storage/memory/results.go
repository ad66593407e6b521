package memory

import (
	"context"
	"sort"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/google/uuid"
)

// ResultStore implementation --------------------------------------------------

func (s *Store) CreateResult(_ context.Context, r lottery.Result) (lottery.Result, bool, error) {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()

	key := drawKey(r.LotteryID, r.DrawDate)
	if existing, ok := s.results[key]; ok {
		return existing, false, nil
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = s.now()
	s.results[key] = r
	return r, true, nil
}

func (s *Store) GetResult(_ context.Context, lotteryID string, drawDate time.Time) (lottery.Result, error) {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()

	r, ok := s.results[drawKey(lotteryID, drawDate)]
	if !ok {
		return lottery.Result{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListResults(_ context.Context, lotteryID string, limit int) ([]lottery.Result, error) {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()

	var out []lottery.Result
	for _, r := range s.results {
		if lotteryID == "" || r.LotteryID == lotteryID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DrawDate.After(out[j].DrawDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkResultSettled(_ context.Context, id string, at time.Time) error {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()

	for key, r := range s.results {
		if r.ID == id {
			settled := at
			r.SettledAt = &settled
			s.results[key] = r
			return nil
		}
	}
	return storage.ErrNotFound
}
