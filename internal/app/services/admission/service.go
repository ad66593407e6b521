// Package admission turns validated bet requests into persisted pending bets.
// A batch is admitted as a whole: fractions are reserved, the balance is
// debited once and the bets are written together, and any failure undoes the
// steps already taken.
package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/balance"
	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/metrics"
	"github.com/R3E-Network/lottery_layer/internal/app/services/inventory"
	"github.com/R3E-Network/lottery_layer/internal/app/services/validation"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet moves bet stakes.
type Wallet interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, referenceID string) error
	Refund(ctx context.Context, userID string, amount decimal.Decimal, referenceID string) error
}

// Receipt describes an admitted batch.
type Receipt struct {
	BatchID string          `json:"batch_id"`
	Bets    []lottery.Bet   `json:"bets"`
	Total   decimal.Decimal `json:"total"`
}

// Service admits bets.
type Service struct {
	lotteries storage.LotteryStore
	bets      storage.BetStore
	inventory *inventory.Service
	validator *validation.Validator
	wallet    Wallet
	now       func() time.Time
	log       *logger.Logger
}

// Option customises the service.
type Option func(*Service)

// WithClock overrides the wall clock captured at request entry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the admission service.
func New(lotteries storage.LotteryStore, bets storage.BetStore, inv *inventory.Service, v *validation.Validator, wallet Wallet, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("admission")
	}
	s := &Service{
		lotteries: lotteries,
		bets:      bets,
		inventory: inv,
		validator: v,
		wallet:    wallet,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBet admits a single bet.
func (s *Service) PlaceBet(ctx context.Context, userID string, req validation.BetRequest) (lottery.Bet, error) {
	receipt, err := s.PlaceBatch(ctx, userID, []validation.BetRequest{req})
	if err != nil {
		return lottery.Bet{}, err
	}
	return receipt.Bets[0], nil
}

// PlaceBatch admits every request or none of them.
func (s *Service) PlaceBatch(ctx context.Context, userID string, reqs []validation.BetRequest) (Receipt, error) {
	now := s.now()
	if strings.TrimSpace(userID) == "" {
		return Receipt{}, apperrors.Validation("user id is required")
	}
	if len(reqs) == 0 {
		return Receipt{}, apperrors.Validation("no bets submitted")
	}

	items, problems, err := s.resolve(ctx, reqs)
	if err != nil {
		return Receipt{}, err
	}
	if len(problems) > 0 {
		metrics.RecordAdmission("invalid", 0)
		return Receipt{}, apperrors.Validation(problems...)
	}

	batch := s.inventory.NewBatch()
	results, err := s.validator.ValidateBatch(ctx, userID, now, items, batch)
	if err != nil {
		return Receipt{}, fmt.Errorf("validate bets: %w", err)
	}
	for i, res := range results {
		for _, msg := range res.Errors {
			problems = append(problems, label(i, len(results), msg))
		}
	}
	if len(problems) > 0 {
		metrics.RecordAdmission("invalid", 0)
		return Receipt{}, apperrors.Validation(problems...)
	}

	// Reserve.
	for i, item := range items {
		key := item.Request.Key(item.Lottery.DrawDateAt(now))
		res, err := batch.Reserve(ctx, item.Lottery, key, item.Request.Fractions)
		if err != nil {
			s.rollback(ctx, batch)
			metrics.RecordAdmission("conflict", 0)
			return Receipt{}, err
		}
		if !res.OK() {
			s.rollback(ctx, batch)
			metrics.RecordAdmission("conflict", 0)
			return Receipt{}, apperrors.Conflict("FRACTIONS_UNAVAILABLE", "%s",
				label(i, len(items), fmt.Sprintf("requested %d fractions of %s but %s", item.Request.Fractions, key.Label(), res.Reason)))
		}
	}

	// Debit once.
	batchID := uuid.NewString()
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Request.Amount)
	}
	if err := s.wallet.Debit(ctx, userID, total, batchID); err != nil {
		s.rollback(ctx, batch)
		if errors.Is(err, balance.ErrInsufficientFunds) {
			metrics.RecordAdmission("invalid", 0)
			return Receipt{}, apperrors.Validation(fmt.Sprintf("insufficient balance for %s", total))
		}
		metrics.RecordAdmission("error", 0)
		return Receipt{}, fmt.Errorf("debit batch %s: %w", batchID, err)
	}

	// Persist together.
	bets := make([]lottery.Bet, len(items))
	for i, item := range items {
		bets[i] = lottery.Bet{
			ID:        uuid.NewString(),
			LotteryID: item.Lottery.ID,
			UserID:    userID,
			BatchID:   batchID,
			Number:    item.Request.Number,
			Series:    item.Request.Series,
			Fractions: item.Request.Fractions,
			Amount:    item.Request.Amount,
			DrawDate:  item.Lottery.DrawDateAt(now),
			Status:    lottery.BetPending,
			WonAmount: decimal.Zero,
		}
	}
	created, err := s.bets.CreateBets(ctx, bets)
	if err != nil {
		if rerr := s.wallet.Refund(ctx, userID, total, batchID); rerr != nil {
			s.log.WithError(rerr).
				WithField("user_id", userID).
				WithField("batch_id", batchID).
				WithField("amount", total.String()).
				Error("refund after failed bet write")
		}
		s.rollback(ctx, batch)
		metrics.RecordAdmission("error", 0)
		return Receipt{}, fmt.Errorf("persist batch %s: %w", batchID, err)
	}

	metrics.RecordAdmission("admitted", len(created))
	s.log.WithField("user_id", userID).
		WithField("batch_id", batchID).
		WithField("bets", len(created)).
		WithField("total", total.String()).
		Info("bets admitted")
	return Receipt{BatchID: batchID, Bets: created, Total: total}, nil
}

// resolve loads the lottery of every request. Unknown lotteries are reported
// as validation problems.
func (s *Service) resolve(ctx context.Context, reqs []validation.BetRequest) ([]validation.Item, []string, error) {
	cache := make(map[string]lottery.Lottery)
	items := make([]validation.Item, len(reqs))
	var problems []string
	for i, req := range reqs {
		lot, ok := cache[req.LotteryID]
		if !ok && req.LotteryID != "" {
			var err error
			lot, err = s.lotteries.GetLottery(ctx, req.LotteryID)
			if errors.Is(err, storage.ErrNotFound) {
				problems = append(problems, label(i, len(reqs), fmt.Sprintf("lottery %s does not exist", req.LotteryID)))
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("load lottery %s: %w", req.LotteryID, err)
			}
			cache[req.LotteryID] = lot
		}
		if req.LotteryID == "" {
			problems = append(problems, label(i, len(reqs), "lottery_id is required"))
			continue
		}
		items[i] = validation.Item{Lottery: lot, Request: req}
	}
	return items, problems, nil
}

func (s *Service) rollback(ctx context.Context, batch *inventory.Batch) {
	if err := batch.Rollback(ctx); err != nil {
		s.log.WithError(err).Error("batch rollback incomplete")
	}
}

func label(i, n int, msg string) string {
	if n == 1 {
		return msg
	}
	return fmt.Sprintf("bet %d: %s", i+1, msg)
}
