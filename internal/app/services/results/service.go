// Package results records draw results and triggers settlement once per draw.
package results

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/settlement"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// Settler settles one draw.
type Settler interface {
	Settle(ctx context.Context, result lottery.Result) (settlement.Report, error)
}

// Fetcher returns the feed's current entries.
type Fetcher interface {
	Fetch(ctx context.Context) ([]FeedEntry, error)
}

// Delivery describes what happened to a delivered result.
type Delivery struct {
	Result  lottery.Result     `json:"result"`
	Created bool               `json:"created"`
	Settled bool               `json:"settled"`
	Report  *settlement.Report `json:"report,omitempty"`
}

// SyncReport summarises one feed sync.
type SyncReport struct {
	Fetched   int `json:"fetched"`
	Delivered int `json:"delivered"`
	Settled   int `json:"settled"`
	Unknown   int `json:"unknown"`
	Failed    int `json:"failed"`
}

// Service is the result intake.
type Service struct {
	lotteries storage.LotteryStore
	results   storage.ResultStore
	settler   Settler
	feed      Fetcher
	now       func() time.Time
	log       *logger.Logger
}

// New constructs the service. feed may be nil when no feed is configured.
func New(lotteries storage.LotteryStore, results storage.ResultStore, settler Settler, feed Fetcher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("results")
	}
	return &Service{
		lotteries: lotteries,
		results:   results,
		settler:   settler,
		feed:      feed,
		now:       time.Now,
		log:       log,
	}
}

// Deliver records r and settles its draw. Delivering the same outcome again
// only retries settlement if an earlier run did not finish; a different
// outcome for a recorded draw is a conflict.
func (s *Service) Deliver(ctx context.Context, r lottery.Result) (Delivery, error) {
	lot, err := s.lotteries.GetLottery(ctx, r.LotteryID)
	if errors.Is(err, storage.ErrNotFound) {
		return Delivery{}, apperrors.NotFound("lottery", r.LotteryID)
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("load lottery %s: %w", r.LotteryID, err)
	}

	r = normalize(lot, r)
	if problems := check(lot, r); len(problems) > 0 {
		return Delivery{}, apperrors.Validation(problems...)
	}

	stored, created, err := s.results.CreateResult(ctx, r)
	if err != nil {
		return Delivery{}, fmt.Errorf("record result: %w", err)
	}
	if !created && !stored.SameOutcome(r) {
		return Delivery{}, apperrors.Conflict("RESULT_MISMATCH",
			"a different result (%s-%s) is already recorded for %s on %s",
			stored.Number, stored.Series, lot.Code, stored.DrawDate.Format("2006-01-02"))
	}

	out := Delivery{Result: stored, Created: created}
	if stored.SettledAt != nil {
		return out, nil
	}

	report, err := s.settler.Settle(ctx, stored)
	if err != nil {
		return out, err
	}
	at := s.now().UTC()
	if err := s.results.MarkResultSettled(ctx, stored.ID, at); err != nil {
		return out, fmt.Errorf("mark result settled: %w", err)
	}
	out.Result.SettledAt = &at
	out.Settled = true
	out.Report = &report

	s.log.WithField("lottery", lot.Code).
		WithField("draw_date", stored.DrawDate.Format("2006-01-02")).
		WithField("number", stored.Number).
		WithField("series", stored.Series).
		Info("result delivered")
	return out, nil
}

// Sync pulls the feed and delivers every entry whose lottery is known. A
// failing entry does not stop the others.
func (s *Service) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	if s.feed == nil {
		return report, apperrors.Configuration("no result feed configured")
	}
	entries, err := s.feed.Fetch(ctx)
	if err != nil {
		return report, err
	}
	report.Fetched = len(entries)

	lots, err := s.lotteries.ListLotteries(ctx, true)
	if err != nil {
		return report, fmt.Errorf("list lotteries: %w", err)
	}

	for _, entry := range entries {
		lot, ok := matchLottery(lots, entry.LotteryName)
		if !ok {
			report.Unknown++
			s.log.WithField("lottery_name", entry.LotteryName).Debug("feed entry for unknown lottery")
			continue
		}
		r := entry.Result
		r.LotteryID = lot.ID
		d, err := s.Deliver(ctx, r)
		if err != nil {
			report.Failed++
			s.log.WithError(err).
				WithField("lottery", lot.Code).
				WithField("draw_date", r.DrawDate.Format("2006-01-02")).
				Warn("feed result not delivered")
			continue
		}
		report.Delivered++
		if d.Settled {
			report.Settled++
		}
	}
	return report, nil
}

func matchLottery(lots []lottery.Lottery, name string) (lottery.Lottery, bool) {
	for _, l := range lots {
		if strings.EqualFold(l.Name, name) || strings.EqualFold(l.Code, name) {
			return l, true
		}
	}
	return lottery.Lottery{}, false
}

// normalize zero-fills numbers that travelled as JSON numbers and truncates
// the draw date.
func normalize(lot lottery.Lottery, r lottery.Result) lottery.Result {
	r.LotteryID = lot.ID
	r.DrawDate = lottery.DateOf(r.DrawDate)
	r.Number = lottery.PadDigits(r.Number, lot.NumberWidth())
	if r.Series != "" {
		r.Series = lottery.PadDigits(r.Series, lot.SeriesWidthOrDefault())
	}
	secos := make(lottery.SecoList, 0, len(r.Secos))
	for _, p := range r.Secos {
		p.Number = lottery.PadDigits(p.Number, lot.NumberWidth())
		if p.Series != "" {
			p.Series = lottery.PadDigits(p.Series, lot.SeriesWidthOrDefault())
		}
		secos = append(secos, p)
	}
	r.Secos = secos
	return r
}

func check(lot lottery.Lottery, r lottery.Result) []string {
	var problems []string
	if r.DrawDate.IsZero() || r.DrawDate.Year() < 2000 {
		problems = append(problems, "draw_date is required")
	}
	width := lot.NumberWidth()
	if !lottery.IsDigits(r.Number) || len(r.Number) != width {
		problems = append(problems, fmt.Sprintf("number must have %d digits", width))
	}
	sw := lot.SeriesWidthOrDefault()
	switch {
	case r.Series == "" && lot.RequiresSeries:
		problems = append(problems, "series is required")
	case r.Series != "" && (!lottery.IsDigits(r.Series) || len(r.Series) != sw):
		problems = append(problems, fmt.Sprintf("series must have %d digits", sw))
	}
	for i, p := range r.Secos {
		if !lottery.IsDigits(p.Number) || len(p.Number) != width {
			problems = append(problems, fmt.Sprintf("seco %d: number must have %d digits", i+1, width))
		}
	}
	return problems
}
