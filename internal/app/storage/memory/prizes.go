package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/google/uuid"
)

// PrizeStore implementation ---------------------------------------------------

func (s *Store) CreatePrizeType(_ context.Context, pt lottery.PrizeType) (lottery.PrizeType, error) {
	s.prizeMu.Lock()
	defer s.prizeMu.Unlock()

	for _, existing := range s.prizeTypes {
		if existing.Code == pt.Code {
			return lottery.PrizeType{}, fmt.Errorf("prize type %s already exists", pt.Code)
		}
	}
	if pt.ID == "" {
		pt.ID = uuid.NewString()
	}
	s.prizeTypes[pt.ID] = pt
	return pt, nil
}

func (s *Store) GetPrizeTypeByCode(_ context.Context, code string) (lottery.PrizeType, error) {
	s.prizeMu.RLock()
	defer s.prizeMu.RUnlock()

	for _, pt := range s.prizeTypes {
		if pt.Code == code {
			return pt, nil
		}
	}
	return lottery.PrizeType{}, storage.ErrNotFound
}

func (s *Store) ListPrizeTypes(_ context.Context) ([]lottery.PrizeType, error) {
	s.prizeMu.RLock()
	defer s.prizeMu.RUnlock()

	out := make([]lottery.PrizeType, 0, len(s.prizeTypes))
	for _, pt := range s.prizeTypes {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) CreatePlan(_ context.Context, plan lottery.PrizePlan) (lottery.PrizePlan, error) {
	s.prizeMu.Lock()
	defer s.prizeMu.Unlock()

	if plan.ID == "" {
		plan.ID = uuid.NewString()
	} else if _, exists := s.plans[plan.ID]; exists {
		return lottery.PrizePlan{}, fmt.Errorf("prize plan %s already exists", plan.ID)
	}
	now := s.now()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	plan.Prizes = assignPrizeIDs(plan.ID, plan.Prizes)
	s.plans[plan.ID] = plan
	return plan, nil
}

func (s *Store) UpdatePlan(_ context.Context, plan lottery.PrizePlan) (lottery.PrizePlan, error) {
	s.prizeMu.Lock()
	defer s.prizeMu.Unlock()

	existing, ok := s.plans[plan.ID]
	if !ok {
		return lottery.PrizePlan{}, storage.ErrNotFound
	}
	plan.CreatedAt = existing.CreatedAt
	plan.UpdatedAt = s.now()
	plan.Prizes = assignPrizeIDs(plan.ID, plan.Prizes)
	s.plans[plan.ID] = plan
	return plan, nil
}

func (s *Store) GetPlan(_ context.Context, id string) (lottery.PrizePlan, error) {
	s.prizeMu.RLock()
	defer s.prizeMu.RUnlock()

	plan, ok := s.plans[id]
	if !ok {
		return lottery.PrizePlan{}, storage.ErrNotFound
	}
	return plan, nil
}

func (s *Store) ListPlans(_ context.Context, lotteryID string) ([]lottery.PrizePlan, error) {
	s.prizeMu.RLock()
	defer s.prizeMu.RUnlock()

	var out []lottery.PrizePlan
	for _, plan := range s.plans {
		if plan.LotteryID == lotteryID {
			out = append(out, plan)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeactivatePlans(_ context.Context, lotteryID, exceptID string) error {
	s.prizeMu.Lock()
	defer s.prizeMu.Unlock()

	for id, plan := range s.plans {
		if plan.LotteryID == lotteryID && id != exceptID && plan.Active {
			plan.Active = false
			plan.UpdatedAt = s.now()
			s.plans[id] = plan
		}
	}
	return nil
}

func (s *Store) LockPlan(_ context.Context, id string, at time.Time) error {
	s.prizeMu.Lock()
	defer s.prizeMu.Unlock()

	plan, ok := s.plans[id]
	if !ok {
		return storage.ErrNotFound
	}
	if plan.SettledAt == nil {
		locked := at
		plan.SettledAt = &locked
		s.plans[id] = plan
	}
	return nil
}

func assignPrizeIDs(planID string, prizes []lottery.Prize) []lottery.Prize {
	out := make([]lottery.Prize, len(prizes))
	for i, p := range prizes {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.PlanID = planID
		out[i] = p
	}
	return out
}
