package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

const (
	prizeTypeColumns = `id, code, name, kind, match_rule, requires_series`
	planColumns      = `id, lottery_id, name, sorteo_number, start_date, end_date, is_active,
	settled_at, created_at, updated_at`
)

// prizeRow is a prize joined with its type.
type prizeRow struct {
	ID                 string            `db:"id"`
	PlanID             string            `db:"plan_id"`
	Name               string            `db:"name"`
	Amount             decimal.Decimal   `db:"amount"`
	FractionAmount     decimal.Decimal   `db:"fraction_amount"`
	Quantity           int               `db:"quantity"`
	Order              int               `db:"sort_order"`
	TypeID             string            `db:"type_id"`
	TypeCode           string            `db:"type_code"`
	TypeName           string            `db:"type_name"`
	TypeKind           lottery.PrizeKind `db:"type_kind"`
	TypeRule           lottery.MatchRule `db:"type_match_rule"`
	TypeRequiresSeries bool              `db:"type_requires_series"`
}

func (r prizeRow) prize() lottery.Prize {
	return lottery.Prize{
		ID:             r.ID,
		PlanID:         r.PlanID,
		Name:           r.Name,
		Amount:         r.Amount,
		FractionAmount: r.FractionAmount,
		Quantity:       r.Quantity,
		Order:          r.Order,
		Type: lottery.PrizeType{
			ID:             r.TypeID,
			Code:           r.TypeCode,
			Name:           r.TypeName,
			Kind:           r.TypeKind,
			Rule:           r.TypeRule,
			RequiresSeries: r.TypeRequiresSeries,
		},
	}
}

// --- PrizeStore -------------------------------------------------------------

func (s *Store) CreatePrizeType(ctx context.Context, pt lottery.PrizeType) (lottery.PrizeType, error) {
	if pt.ID == "" {
		pt.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prize_types (`+prizeTypeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, pt.ID, pt.Code, pt.Name, pt.Kind, pt.Rule, pt.RequiresSeries)
	if isUniqueViolation(err) {
		return lottery.PrizeType{}, fmt.Errorf("prize type %s already exists", pt.Code)
	}
	if err != nil {
		return lottery.PrizeType{}, err
	}
	return pt, nil
}

func (s *Store) GetPrizeTypeByCode(ctx context.Context, code string) (lottery.PrizeType, error) {
	var pt lottery.PrizeType
	err := s.db.GetContext(ctx, &pt, `SELECT `+prizeTypeColumns+` FROM prize_types WHERE code = $1`, code)
	if err != nil {
		return lottery.PrizeType{}, notFound(err)
	}
	return pt, nil
}

func (s *Store) ListPrizeTypes(ctx context.Context) ([]lottery.PrizeType, error) {
	var out []lottery.PrizeType
	if err := s.db.SelectContext(ctx, &out, `SELECT `+prizeTypeColumns+` FROM prize_types ORDER BY code`); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreatePlan(ctx context.Context, plan lottery.PrizePlan) (lottery.PrizePlan, error) {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	now := s.now()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prize_plans (`+planColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, plan.ID, plan.LotteryID, plan.Name, plan.SorteoNumber, day(plan.StartDate), dayPtr(plan.EndDate),
			plan.Active, plan.SettledAt, plan.CreatedAt, plan.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("prize plan %s already exists", plan.ID)
		}
		if err != nil {
			return err
		}
		plan.Prizes, err = insertPrizes(ctx, tx, plan.ID, plan.Prizes)
		return err
	})
	if err != nil {
		return lottery.PrizePlan{}, err
	}
	return plan, nil
}

func (s *Store) UpdatePlan(ctx context.Context, plan lottery.PrizePlan) (lottery.PrizePlan, error) {
	plan.UpdatedAt = s.now()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			UPDATE prize_plans
			SET lottery_id = $2, name = $3, sorteo_number = $4, start_date = $5, end_date = $6,
				is_active = $7, settled_at = $8, updated_at = $9
			WHERE id = $1
			RETURNING created_at
		`, plan.ID, plan.LotteryID, plan.Name, plan.SorteoNumber, day(plan.StartDate), dayPtr(plan.EndDate),
			plan.Active, plan.SettledAt, plan.UpdatedAt).Scan(&plan.CreatedAt)
		if err != nil {
			return notFound(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM prizes WHERE plan_id = $1`, plan.ID); err != nil {
			return err
		}
		plan.Prizes, err = insertPrizes(ctx, tx, plan.ID, plan.Prizes)
		return err
	})
	if err != nil {
		return lottery.PrizePlan{}, err
	}
	return plan, nil
}

// insertPrizes writes a plan's prizes. A prize naming its type only by code
// is resolved against prize_types.
func insertPrizes(ctx context.Context, tx *sqlx.Tx, planID string, prizes []lottery.Prize) ([]lottery.Prize, error) {
	out := make([]lottery.Prize, len(prizes))
	for i, p := range prizes {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.PlanID = planID
		if p.Type.ID == "" {
			if err := tx.GetContext(ctx, &p.Type, `SELECT `+prizeTypeColumns+` FROM prize_types WHERE code = $1`, p.Type.Code); err != nil {
				return nil, fmt.Errorf("prize type %q: %w", p.Type.Code, notFound(err))
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prizes (id, plan_id, prize_type_id, name, amount, fraction_amount, quantity, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, p.ID, p.PlanID, p.Type.ID, p.Name, p.Amount, p.FractionAmount, p.Quantity, p.Order)
		if err != nil {
			return nil, fmt.Errorf("insert prize %s: %w", p.ID, err)
		}
		out[i] = p
	}
	return out, nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (lottery.PrizePlan, error) {
	var plan lottery.PrizePlan
	if err := s.db.GetContext(ctx, &plan, `SELECT `+planColumns+` FROM prize_plans WHERE id = $1`, id); err != nil {
		return lottery.PrizePlan{}, notFound(err)
	}
	plans := []lottery.PrizePlan{plan}
	if err := s.attachPrizes(ctx, plans); err != nil {
		return lottery.PrizePlan{}, err
	}
	return plans[0], nil
}

func (s *Store) ListPlans(ctx context.Context, lotteryID string) ([]lottery.PrizePlan, error) {
	var plans []lottery.PrizePlan
	err := s.db.SelectContext(ctx, &plans, `
		SELECT `+planColumns+` FROM prize_plans
		WHERE lottery_id = $1
		ORDER BY start_date DESC, created_at DESC
	`, lotteryID)
	if err != nil {
		return nil, err
	}
	if err := s.attachPrizes(ctx, plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// attachPrizes loads the prizes of every plan in one query, in plan order.
func (s *Store) attachPrizes(ctx context.Context, plans []lottery.PrizePlan) error {
	if len(plans) == 0 {
		return nil
	}
	ids := make([]string, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
	}
	query, args, err := sqlx.In(`
		SELECT p.id, p.plan_id, p.name, p.amount, p.fraction_amount, p.quantity, p.sort_order,
			t.id AS type_id, t.code AS type_code, t.name AS type_name, t.kind AS type_kind,
			t.match_rule AS type_match_rule, t.requires_series AS type_requires_series
		FROM prizes p
		JOIN prize_types t ON t.id = p.prize_type_id
		WHERE p.plan_id IN (?)
		ORDER BY p.plan_id, p.sort_order, p.id
	`, ids)
	if err != nil {
		return err
	}
	var rows []prizeRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return err
	}
	byPlan := make(map[string][]lottery.Prize, len(plans))
	for _, r := range rows {
		byPlan[r.PlanID] = append(byPlan[r.PlanID], r.prize())
	}
	for i := range plans {
		plans[i].Prizes = byPlan[plans[i].ID]
	}
	return nil
}

func (s *Store) DeactivatePlans(ctx context.Context, lotteryID, exceptID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE prize_plans SET is_active = FALSE, updated_at = $3
		WHERE lottery_id = $1 AND id <> $2 AND is_active
	`, lotteryID, exceptID, s.now())
	return err
}

// LockPlan records the first settlement against a plan; later calls keep the
// original timestamp.
func (s *Store) LockPlan(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE prize_plans SET settled_at = COALESCE(settled_at, $2) WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
