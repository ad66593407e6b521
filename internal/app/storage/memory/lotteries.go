package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/google/uuid"
)

// LotteryStore implementation -------------------------------------------------

func (s *Store) CreateLottery(_ context.Context, l lottery.Lottery) (lottery.Lottery, error) {
	s.lotteryMu.Lock()
	defer s.lotteryMu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	} else if _, exists := s.lotteries[l.ID]; exists {
		return lottery.Lottery{}, fmt.Errorf("lottery %s already exists", l.ID)
	}
	for _, existing := range s.lotteries {
		if strings.EqualFold(existing.Code, l.Code) {
			return lottery.Lottery{}, fmt.Errorf("lottery code %s already exists", l.Code)
		}
	}

	now := s.now()
	l.CreatedAt = now
	l.UpdatedAt = now
	s.lotteries[l.ID] = l
	return l, nil
}

func (s *Store) UpdateLottery(_ context.Context, l lottery.Lottery) (lottery.Lottery, error) {
	s.lotteryMu.Lock()
	defer s.lotteryMu.Unlock()

	existing, ok := s.lotteries[l.ID]
	if !ok {
		return lottery.Lottery{}, storage.ErrNotFound
	}
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = s.now()
	s.lotteries[l.ID] = l
	return l, nil
}

func (s *Store) GetLottery(_ context.Context, id string) (lottery.Lottery, error) {
	s.lotteryMu.RLock()
	defer s.lotteryMu.RUnlock()

	l, ok := s.lotteries[id]
	if !ok {
		return lottery.Lottery{}, storage.ErrNotFound
	}
	return l, nil
}

func (s *Store) GetLotteryByCode(_ context.Context, code string) (lottery.Lottery, error) {
	s.lotteryMu.RLock()
	defer s.lotteryMu.RUnlock()

	for _, l := range s.lotteries {
		if strings.EqualFold(l.Code, code) {
			return l, nil
		}
	}
	return lottery.Lottery{}, storage.ErrNotFound
}

func (s *Store) ListLotteries(_ context.Context, activeOnly bool) ([]lottery.Lottery, error) {
	s.lotteryMu.RLock()
	defer s.lotteryMu.RUnlock()

	out := make([]lottery.Lottery, 0, len(s.lotteries))
	for _, l := range s.lotteries {
		if activeOnly && !l.Active {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
