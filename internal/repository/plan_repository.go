package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/web3analysis/internal/database"
	"github.com/digkill/web3analysis/internal/models"
)

type PlanRepository struct {
	db *sql.DB
}

func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, plan_type, title, COALESCE(description, ''), price, credits, is_active, created_at, updated_at`

func (r *PlanRepository) List(ctx context.Context) ([]models.Plan, error) {
	const query = `SELECT ` + planColumns + ` FROM pricing_plans ORDER BY id ASC`
	return r.list(ctx, "list plans", query)
}

func (r *PlanRepository) ListActive(ctx context.Context) ([]models.Plan, error) {
	const query = `SELECT ` + planColumns + ` FROM pricing_plans WHERE is_active = 1 ORDER BY id ASC`
	return r.list(ctx, "list active plans", query)
}

func (r *PlanRepository) FindActive(ctx context.Context, planType models.PlanType) ([]models.Plan, error) {
	const query = `SELECT ` + planColumns + ` FROM pricing_plans WHERE is_active = 1 AND plan_type = ? ORDER BY id ASC`
	return r.list(ctx, "find active plans", query, planType)
}

func (r *PlanRepository) GetByID(ctx context.Context, id int64) (*models.Plan, error) {
	const query = `SELECT ` + planColumns + ` FROM pricing_plans WHERE id = ?`
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, query, id)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	const query = `
INSERT INTO pricing_plans (plan_type, title, description, price, credits, is_active)
VALUES (?, ?, NULLIF(?, ''), ?, ?, ?)`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, plan.Type, plan.Title, plan.Description, plan.Price, plan.Credits, plan.IsActive)
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("plan last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *PlanRepository) Update(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	const query = `
UPDATE pricing_plans
SET plan_type = ?, title = ?, description = NULLIF(?, ''), price = ?, credits = ?, is_active = ?, updated_at = NOW()
WHERE id = ?`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, plan.Type, plan.Title, plan.Description, plan.Price, plan.Credits, plan.IsActive, plan.ID); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	return r.GetByID(ctx, plan.ID)
}

func (r *PlanRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM pricing_plans WHERE id = ?`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return nil
}

func (r *PlanRepository) list(ctx context.Context, op, query string, args ...any) ([]models.Plan, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	plans := make([]models.Plan, 0)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

func scanPlan(row rowScanner) (*models.Plan, error) {
	var plan models.Plan
	if err := row.Scan(&plan.ID, &plan.Type, &plan.Title, &plan.Description, &plan.Price, &plan.Credits, &plan.IsActive, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
		return nil, err
	}
	return &plan, nil
}
