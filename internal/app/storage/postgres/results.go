package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

const resultColumns = `id, lottery_id, draw_date, number, series, secos, settled_at, created_at`

// --- ResultStore ------------------------------------------------------------

func (s *Store) CreateResult(ctx context.Context, r lottery.Result) (lottery.Result, bool, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = s.now()

	var stored lottery.Result
	err := s.db.GetContext(ctx, &stored, `
		INSERT INTO results (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (lottery_id, draw_date) DO NOTHING
		RETURNING `+resultColumns,
		r.ID, r.LotteryID, day(r.DrawDate), r.Number, r.Series, r.Secos, r.SettledAt, r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := s.GetResult(ctx, r.LotteryID, r.DrawDate)
		if err != nil {
			return lottery.Result{}, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return lottery.Result{}, false, err
	}
	return stored, true, nil
}

func (s *Store) GetResult(ctx context.Context, lotteryID string, drawDate time.Time) (lottery.Result, error) {
	var r lottery.Result
	err := s.db.GetContext(ctx, &r, `
		SELECT `+resultColumns+` FROM results WHERE lottery_id = $1 AND draw_date = $2
	`, lotteryID, day(drawDate))
	if err != nil {
		return lottery.Result{}, notFound(err)
	}
	return r, nil
}

// ListResults returns the newest results first. An empty lotteryID lists
// every lottery and a non-positive limit returns all rows.
func (s *Store) ListResults(ctx context.Context, lotteryID string, limit int) ([]lottery.Result, error) {
	var out []lottery.Result
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+resultColumns+` FROM results
		WHERE $1 = '' OR lottery_id = $1
		ORDER BY draw_date DESC, created_at DESC
		LIMIT NULLIF($2, 0)
	`, lotteryID, max(limit, 0))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) MarkResultSettled(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE results SET settled_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
