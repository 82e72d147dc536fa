package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/metrics"
	"github.com/digkill/web3analysis/internal/models"
	"github.com/digkill/web3analysis/internal/repository"
)

// LedgerService owns credit balances. Every mutation is a single conditional
// statement or runs inside one transaction, so concurrent requests from
// separate instances cannot overspend or lose a grant.
type LedgerService struct {
	cfg     config.Config
	log     *slog.Logger
	tx      Transactor
	credits CreditStore
	orders  OrderStore
	reports ReportStore
	now     func() time.Time
}

func NewLedgerService(cfg config.Config, log *slog.Logger, tx Transactor, credits CreditStore, orders OrderStore, reports ReportStore) *LedgerService {
	return &LedgerService{
		cfg:     cfg,
		log:     log,
		tx:      tx,
		credits: credits,
		orders:  orders,
		reports: reports,
		now:     utcNow,
	}
}

type DebitRequest struct {
	Address  string
	Amount   int
	Reason   models.ConsumptionType
	ReportID *int64
}

type ConsumeRequest struct {
	Address  string
	ReportID *int64
	Type     models.ConsumptionType
}

type ConsumeResult struct {
	LeftCredits      int  `json:"left_credits"`
	AlreadyPurchased bool `json:"already_purchased,omitempty"`
}

// Credit adds amount to the account, creating it if needed. Monthly grants
// reset the expiry; one-time grants leave it alone.
func (s *LedgerService) Credit(ctx context.Context, address string, amount int, plan models.PlanType) error {
	if err := s.credit(ctx, address, amount, plan); err != nil {
		return err
	}
	metrics.RecordGrant(string(plan), amount)
	return nil
}

func (s *LedgerService) credit(ctx context.Context, address string, amount int, plan models.PlanType) error {
	if strings.TrimSpace(address) == "" {
		return invalid("Address cannot be empty")
	}
	if amount <= 0 {
		return invalid("credit amount must be positive")
	}
	if !plan.Valid() {
		return invalid("unknown plan %q", plan)
	}
	now := s.now()
	var expiresAt *time.Time
	if plan == models.PlanMonthly {
		t := now.Add(s.cfg.MonthlyPlanDuration)
		expiresAt = &t
	}
	return s.credits.Credit(ctx, address, amount, plan, expiresAt, now)
}

// Debit spends credits. The balance check, the decrement, the consumption
// record and (for views) the access grant commit together or not at all.
// A view of a report the user already holds returns ErrAlreadyPurchased
// without spending anything.
func (s *LedgerService) Debit(ctx context.Context, req DebitRequest) (int, error) {
	if strings.TrimSpace(req.Address) == "" {
		return 0, invalid("Address cannot be empty")
	}
	if req.Amount <= 0 {
		return 0, invalid("debit amount must be positive")
	}
	if !req.Reason.Valid() {
		return 0, invalid("type must be view or generate")
	}

	var left int
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.now()
		if _, err := s.credits.Expire(ctx, req.Address, now); err != nil {
			return err
		}
		if req.Reason == models.ConsumeView && req.ReportID != nil {
			granted, err := s.reports.GrantAccess(ctx, req.Address, *req.ReportID, now)
			if err != nil {
				return err
			}
			if !granted {
				return ErrAlreadyPurchased
			}
		}

		var err error
		left, err = s.credits.Debit(ctx, req.Address, req.Amount, now)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientCredits) {
				return ErrInsufficientCredits
			}
			return err
		}
		return s.credits.RecordConsumption(ctx, &models.CreditConsumption{
			Address:   req.Address,
			Amount:    req.Amount,
			Type:      req.Reason,
			ReportID:  req.ReportID,
			CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordDebit(string(req.Reason), req.Amount)
	s.log.Info("credits debited", "user_address", req.Address, "amount", req.Amount, "reason", req.Reason, "left_credits", left)
	return left, nil
}

// Consume is the pay-to-view entry point. Views cost ViewCost, anything else
// GenerationCost.
func (s *LedgerService) Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	if strings.TrimSpace(req.Address) == "" {
		return nil, invalid("Parameter error")
	}
	if !req.Type.Valid() {
		return nil, invalid("Parameter error")
	}

	amount := s.cfg.GenerationCost
	if req.Type == models.ConsumeView {
		amount = s.cfg.ViewCost
		if req.ReportID == nil {
			return nil, invalid("Parameter error")
		}
		report, err := s.reports.GetByID(ctx, *req.ReportID)
		if err != nil {
			return nil, fmt.Errorf("get report: %w", err)
		}
		if report == nil {
			return nil, ErrReportNotFound
		}
		owned, err := s.reports.HasAccess(ctx, req.Address, *req.ReportID)
		if err != nil {
			return nil, fmt.Errorf("check report access: %w", err)
		}
		if owned {
			return &ConsumeResult{AlreadyPurchased: true}, nil
		}
	}

	left, err := s.Debit(ctx, DebitRequest{
		Address:  req.Address,
		Amount:   amount,
		Reason:   req.Type,
		ReportID: req.ReportID,
	})
	if errors.Is(err, ErrAlreadyPurchased) {
		return &ConsumeResult{AlreadyPurchased: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ConsumeResult{LeftCredits: left}, nil
}

// Balance recomputes the totals from settled, unexpired orders; only the used
// counter and the expiry come from the ledger row.
func (s *LedgerService) Balance(ctx context.Context, address string) (*models.CreditBalance, error) {
	if strings.TrimSpace(address) == "" {
		return nil, invalid("Address is required")
	}
	now := s.now()
	if _, err := s.credits.Expire(ctx, address, now); err != nil {
		return nil, err
	}

	orders, err := s.orders.ListSettled(ctx, address, now)
	if err != nil {
		return nil, err
	}
	row, err := s.credits.Get(ctx, address)
	if err != nil {
		return nil, err
	}

	var balance models.CreditBalance
	for _, o := range orders {
		switch o.Plan {
		case models.PlanMonthly:
			balance.MonthlyCredits += o.Credits
		default:
			balance.OneTimeCredits += o.Credits
		}
	}
	balance.TotalCredits = balance.OneTimeCredits + balance.MonthlyCredits
	if row != nil {
		balance.UsedCredits = row.UsedCredits
		balance.ExpiresAt = row.ExpiresAt
		if row.ExpiresAt != nil {
			balance.DaysUntilExpiry = daysUntil(now, *row.ExpiresAt)
		}
	}
	balance.LeftCredits = max(0, balance.TotalCredits-balance.UsedCredits)
	return &balance, nil
}

// Expire zeroes the account if its expiry has passed.
func (s *LedgerService) Expire(ctx context.Context, address string) (bool, error) {
	return s.credits.Expire(ctx, address, s.now())
}

func (s *LedgerService) ExpireAll(ctx context.Context) (int64, error) {
	return s.credits.ExpireAll(ctx, s.now())
}

// Expiring reports credits that lapse within ExpiryNoticeWindow, or nil.
func (s *LedgerService) Expiring(ctx context.Context, address string) (*models.ExpiringCredits, error) {
	if strings.TrimSpace(address) == "" {
		return nil, invalid("Address is required")
	}
	row, err := s.credits.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	if row == nil || row.ExpiresAt == nil {
		return nil, nil
	}
	now := s.now()
	if !row.ExpiresAt.After(now) || row.ExpiresAt.After(now.Add(s.cfg.ExpiryNoticeWindow)) {
		return nil, nil
	}
	return &models.ExpiringCredits{
		IsExpiring: true,
		DaysLeft:   daysUntil(now, *row.ExpiresAt),
		Credits:    row.Credits,
	}, nil
}

func (s *LedgerService) Consumption(ctx context.Context, address string) ([]models.CreditConsumption, error) {
	return s.credits.ListConsumption(ctx, address)
}

func daysUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
