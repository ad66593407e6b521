package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/results"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// Syncer pulls published results.
type Syncer interface {
	Sync(ctx context.Context) (results.SyncReport, error)
}

// ResultSyncJob delivers feed results on spec.
func ResultSyncJob(spec string, syncer Syncer, log *logger.Logger) Job {
	return Job{
		Name:    "result-sync",
		Spec:    spec,
		Timeout: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			report, err := syncer.Sync(ctx)
			if err != nil {
				return err
			}
			log.WithField("fetched", report.Fetched).
				WithField("delivered", report.Delivered).
				WithField("settled", report.Settled).
				WithField("unknown", report.Unknown).
				WithField("failed", report.Failed).
				Info("result feed synced")
			return nil
		},
	}
}

// DrawRoller keeps each lottery's stored next draw date current.
type DrawRoller struct {
	lotteries storage.LotteryStore
	log       *logger.Logger
	now       func() time.Time
}

// NewDrawRoller builds a roller over the lottery store.
func NewDrawRoller(lotteries storage.LotteryStore, log *logger.Logger) *DrawRoller {
	if log == nil {
		log = logger.NewDefault("draw-roller")
	}
	return &DrawRoller{lotteries: lotteries, log: log, now: time.Now}
}

// Roll advances every active lottery whose stored draw date has passed. The
// draw number grows by one per draw rolled over.
func (d *DrawRoller) Roll(ctx context.Context) (int, error) {
	lots, err := d.lotteries.ListLotteries(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("list lotteries: %w", err)
	}
	now := d.now()
	rolled := 0
	for _, lot := range lots {
		next := lot.DrawDateAt(now)
		if lot.NextDrawDate != nil && !lot.NextDrawDate.Before(next) {
			continue
		}
		if lot.NextDrawDate != nil {
			lot.LastDrawNumber += drawsBetween(*lot.NextDrawDate, next)
		}
		lot.NextDrawDate = &next
		if _, err := d.lotteries.UpdateLottery(ctx, lot); err != nil {
			return rolled, fmt.Errorf("roll lottery %s: %w", lot.Code, err)
		}
		rolled++
		d.log.WithField("lottery", lot.Code).
			WithField("next_draw_date", next.Format("2006-01-02")).
			WithField("last_draw_number", lot.LastDrawNumber).
			Info("lottery rolled to next draw")
	}
	return rolled, nil
}

// drawsBetween counts weekly draws from prev up to but excluding next.
func drawsBetween(prev, next time.Time) int {
	days := int(lottery.DateOf(next).Sub(lottery.DateOf(prev)).Hours() / 24)
	if days <= 0 {
		return 0
	}
	return (days + 6) / 7
}

// DrawRollJob runs the roller on spec.
func DrawRollJob(spec string, roller *DrawRoller) Job {
	return Job{
		Name:    "draw-roll",
		Spec:    spec,
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			_, err := roller.Roll(ctx)
			return err
		},
	}
}
