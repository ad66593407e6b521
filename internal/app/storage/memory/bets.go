package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetStore implementation -----------------------------------------------------

func (s *Store) CreateBets(_ context.Context, bets []lottery.Bet) ([]lottery.Bet, error) {
	s.betMu.Lock()
	defer s.betMu.Unlock()

	now := s.now()
	out := make([]lottery.Bet, len(bets))
	seen := make(map[string]struct{}, len(bets))
	for i, b := range bets {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if _, dup := s.bets[b.ID]; dup {
			return nil, fmt.Errorf("bet %s already exists", b.ID)
		}
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("bet %s repeated in batch", b.ID)
		}
		seen[b.ID] = struct{}{}
		if b.Status == "" {
			b.Status = lottery.BetPending
		}
		b.CreatedAt = now
		b.UpdatedAt = now
		out[i] = b
	}

	for _, b := range out {
		s.bets[b.ID] = b
		s.order = append(s.order, b.ID)
	}
	return out, nil
}

func (s *Store) GetBet(_ context.Context, id string) (lottery.Bet, error) {
	s.betMu.RLock()
	defer s.betMu.RUnlock()

	b, ok := s.bets[id]
	if !ok {
		return lottery.Bet{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListBets(_ context.Context, filter lottery.BetFilter) ([]lottery.Bet, error) {
	s.betMu.RLock()
	defer s.betMu.RUnlock()

	var out []lottery.Bet
	for i := len(s.order) - 1; i >= 0; i-- {
		b := s.bets[s.order[i]]
		if !filter.Matches(b) {
			continue
		}
		out = append(out, b)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListPendingBets(_ context.Context, lotteryID string, drawDate time.Time) ([]lottery.Bet, error) {
	s.betMu.RLock()
	defer s.betMu.RUnlock()

	var out []lottery.Bet
	for _, id := range s.order {
		b := s.bets[id]
		if b.LotteryID == lotteryID && b.DrawDate.Equal(drawDate) && b.Status == lottery.BetPending {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SumPendingFractions(_ context.Context, key lottery.CombinationKey) (int, error) {
	return s.sumPending(key), nil
}

func (s *Store) sumPending(key lottery.CombinationKey) int {
	s.betMu.RLock()
	defer s.betMu.RUnlock()

	total := 0
	for _, b := range s.bets {
		if b.Status == lottery.BetPending && sameKey(b.Key(), key) {
			total += b.Fractions
		}
	}
	return total
}

func (s *Store) HasPendingNumber(_ context.Context, lotteryID string, drawDate time.Time, number, excludeSeries string) (bool, error) {
	s.betMu.RLock()
	defer s.betMu.RUnlock()

	for _, b := range s.bets {
		if b.Status != lottery.BetPending || b.LotteryID != lotteryID || !b.DrawDate.Equal(drawDate) {
			continue
		}
		if b.Number == number && b.Series != excludeSeries {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) TransitionBet(_ context.Context, id string, to lottery.BetStatus, won decimal.Decimal, details lottery.WinningDetails, at time.Time) (bool, error) {
	s.betMu.Lock()
	defer s.betMu.Unlock()

	b, ok := s.bets[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if !b.Status.CanTransition(to) {
		return false, nil
	}
	settled := at
	b.Status = to
	b.WonAmount = won
	b.Details = details
	b.SettledAt = &settled
	b.UpdatedAt = at
	s.bets[id] = b
	return true, nil
}

func sameKey(a, b lottery.CombinationKey) bool {
	return a.LotteryID == b.LotteryID && a.Number == b.Number && a.Series == b.Series && a.DrawDate.Equal(b.DrawDate)
}
