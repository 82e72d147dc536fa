package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/models"
)

type PlanService struct {
	cfg  config.Config
	repo PlanStore
}

type CreatePlanInput struct {
	Type        models.PlanType
	Title       string
	Description string
	Price       decimal.Decimal
	Credits     int
	IsActive    *bool
}

type UpdatePlanInput struct {
	Type        *models.PlanType
	Title       *string
	Description *string
	Price       *decimal.Decimal
	Credits     *int
	IsActive    *bool
}

func NewPlanService(cfg config.Config, repo PlanStore) *PlanService {
	return &PlanService{cfg: cfg, repo: repo}
}

// EnsureDefaultPlans seeds one active plan per type when the catalog has none.
func (s *PlanService) EnsureDefaultPlans(ctx context.Context) error {
	defaults := []models.Plan{
		{
			Type:        models.PlanMonthly,
			Title:       "Monthly",
			Description: fmt.Sprintf("%d credits, valid for %d days", s.cfg.MonthlyPlanCredits, int(s.cfg.MonthlyPlanDuration.Hours()/24)),
			Price:       s.cfg.MonthlyPlanPrice,
			Credits:     s.cfg.MonthlyPlanCredits,
			IsActive:    true,
		},
		{
			Type:        models.PlanOneTime,
			Title:       "One-time",
			Description: fmt.Sprintf("%d credits, never expire", s.cfg.OneTimePlanCredits),
			Price:       s.cfg.OneTimePlanPrice,
			Credits:     s.cfg.OneTimePlanCredits,
			IsActive:    true,
		},
	}
	for _, plan := range defaults {
		existing, err := s.repo.FindActive(ctx, plan.Type)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		if _, err := s.repo.Create(ctx, &plan); err != nil {
			return fmt.Errorf("create default %s plan: %w", plan.Type, err)
		}
	}
	return nil
}

func (s *PlanService) List(ctx context.Context) ([]models.Plan, error) {
	return s.repo.List(ctx)
}

func (s *PlanService) ListActive(ctx context.Context) ([]models.Plan, error) {
	return s.repo.ListActive(ctx)
}

// Match returns the active plan of planType whose price and credits equal the request.
func (s *PlanService) Match(ctx context.Context, planType models.PlanType, amount decimal.Decimal, credits int) (*models.Plan, error) {
	plans, err := s.repo.FindActive(ctx, planType)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.Price.Equal(amount) && p.Credits == credits {
			return &p, nil
		}
	}
	return nil, invalid("No active %s plan costs %s for %d credits", planType, amount.String(), credits)
}

func (s *PlanService) Create(ctx context.Context, input CreatePlanInput) (*models.Plan, error) {
	if !input.Type.Valid() {
		return nil, invalid("plan_type must be monthly or onetime")
	}
	if input.Title == "" {
		return nil, invalid("title is required")
	}
	if !input.Price.IsPositive() {
		return nil, invalid("price must be positive")
	}
	if input.Credits <= 0 {
		return nil, invalid("credits must be positive")
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	plan := models.Plan{
		Type:        input.Type,
		Title:       input.Title,
		Description: input.Description,
		Price:       input.Price,
		Credits:     input.Credits,
		IsActive:    isActive,
	}
	return s.repo.Create(ctx, &plan)
}

func (s *PlanService) Update(ctx context.Context, id int64, input UpdatePlanInput) (*models.Plan, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrPlanNotFound
	}
	if input.Type != nil {
		if !input.Type.Valid() {
			return nil, invalid("plan_type must be monthly or onetime")
		}
		existing.Type = *input.Type
	}
	if input.Title != nil && *input.Title != "" {
		existing.Title = *input.Title
	}
	if input.Description != nil {
		existing.Description = *input.Description
	}
	if input.Price != nil && input.Price.IsPositive() {
		existing.Price = *input.Price
	}
	if input.Credits != nil && *input.Credits > 0 {
		existing.Credits = *input.Credits
	}
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}
	return s.repo.Update(ctx, existing)
}

func (s *PlanService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *PlanService) GetByID(ctx context.Context, id int64) (*models.Plan, error) {
	plan, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}
