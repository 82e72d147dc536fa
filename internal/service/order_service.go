package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/digkill/web3analysis/internal/chain"
	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/metrics"
	"github.com/digkill/web3analysis/internal/models"
	"github.com/digkill/web3analysis/internal/notify"
	"github.com/digkill/web3analysis/internal/repository"
)

var errAlreadySettled = errors.New("order already settled")

type OrderService struct {
	cfg      config.Config
	log      *slog.Logger
	tx       Transactor
	orders   OrderStore
	plans    *PlanService
	users    *UserService
	ledger   *LedgerService
	verifier chain.Verifier
	notifier notify.Notifier
	now      func() time.Time
}

func NewOrderService(cfg config.Config, log *slog.Logger, tx Transactor, orders OrderStore, plans *PlanService, users *UserService, ledger *LedgerService, verifier chain.Verifier, notifier notify.Notifier) *OrderService {
	if verifier == nil {
		verifier = chain.TrustVerifier{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &OrderService{
		cfg:      cfg,
		log:      log,
		tx:       tx,
		orders:   orders,
		plans:    plans,
		users:    users,
		ledger:   ledger,
		verifier: verifier,
		notifier: notifier,
		now:      utcNow,
	}
}

type CreateOrderInput struct {
	Address  string
	PlanType models.PlanType
	Amount   decimal.Decimal
	Credits  int
}

type VerifyInput struct {
	TransactionHash string
	OrderNo         string
}

// Create records a pending purchase intent for a catalog plan.
func (s *OrderService) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	address := strings.TrimSpace(input.Address)
	if address == "" {
		return nil, invalid("Address cannot be empty")
	}
	if !input.PlanType.Valid() {
		return nil, invalid("plan_type must be monthly or onetime")
	}
	if !input.Amount.IsPositive() || input.Credits <= 0 {
		return nil, invalid("amount and credits must be positive")
	}
	if _, err := s.plans.Match(ctx, input.PlanType, input.Amount, input.Credits); err != nil {
		return nil, err
	}
	if _, _, err := s.users.Ensure(ctx, address); err != nil {
		return nil, err
	}

	now := s.now()
	validity := s.cfg.OneTimeOrderDuration
	if input.PlanType == models.PlanMonthly {
		validity = s.cfg.MonthlyPlanDuration
	}
	order := &models.Order{
		CreatedAt:     now,
		Address:       address,
		Amount:        input.Amount,
		Credits:       input.Credits,
		Network:       s.cfg.PaymentNetwork,
		Status:        models.OrderPending,
		ExpiredAt:     now.Add(validity),
		Plan:          input.PlanType,
		TokenAddress:  s.cfg.PaymentTokenAddress,
		TokenDecimals: s.cfg.PaymentTokenDecimals,
	}

	const attempts = 3
	for i := 0; i < attempts; i++ {
		order.OrderNo = uuid.NewString()
		err := s.orders.Create(ctx, order)
		if err == nil {
			s.log.Info("order created", "order_no", order.OrderNo, "user_address", address, "plan", input.PlanType, "credits", input.Credits)
			return order, nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrder) {
			return nil, fmt.Errorf("create order: %w", err)
		}
	}
	return nil, fmt.Errorf("create order: %w", repository.ErrDuplicateOrder)
}

// Verify settles an order after the client reports its payment transaction.
// The order is polled a few times to tolerate replication lag. Marking it
// paid and crediting the ledger commit together; a second call for a paid
// order succeeds without crediting again.
func (s *OrderService) Verify(ctx context.Context, input VerifyInput) error {
	txHash := strings.TrimSpace(input.TransactionHash)
	orderNo := strings.TrimSpace(input.OrderNo)
	if txHash == "" || orderNo == "" {
		return invalid("transaction_hash and order_no are required")
	}

	order, err := s.pollOrder(ctx, orderNo)
	if err != nil {
		return err
	}
	if order == nil {
		metrics.RecordSettlement("not_found")
		s.log.Warn("order not found after polling", "order_no", orderNo, "attempts", s.cfg.VerifyMaxAttempts)
		return ErrOrderNotFound
	}
	if order.Status == models.OrderPaid {
		metrics.RecordSettlement("already_paid")
		s.log.Info("order already paid", "order_no", orderNo)
		return nil
	}

	if err := s.verifier.Verify(ctx, order, txHash); err != nil {
		metrics.RecordSettlement("rejected")
		s.log.Warn("transaction rejected", "order_no", orderNo, "tx_hash", txHash, "err", err)
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		moved, err := s.orders.MarkPaid(ctx, orderNo, txHash, s.now())
		if err != nil {
			return err
		}
		if !moved {
			return errAlreadySettled
		}
		return s.ledger.credit(ctx, order.Address, order.Credits, order.Plan)
	})
	switch {
	case errors.Is(err, errAlreadySettled):
		metrics.RecordSettlement("already_paid")
		return nil
	case err != nil:
		metrics.RecordSettlement("failed")
		s.log.Error("settle order", "order_no", orderNo, "user_address", order.Address, "err", err)
		s.notifier.Alert(context.WithoutCancel(ctx), fmt.Sprintf("Settlement failed for order %s (%s): %v", orderNo, order.Address, err))
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	metrics.RecordSettlement("settled")
	metrics.RecordGrant(string(order.Plan), order.Credits)
	s.log.Info("order settled", "order_no", orderNo, "user_address", order.Address, "credits", order.Credits, "plan", order.Plan)
	return nil
}

func (s *OrderService) pollOrder(ctx context.Context, orderNo string) (*models.Order, error) {
	attempts := max(1, s.cfg.VerifyMaxAttempts)
	for attempt := 1; attempt <= attempts; attempt++ {
		order, err := s.orders.FindByOrderNo(ctx, orderNo)
		if err != nil {
			return nil, fmt.Errorf("find order: %w", err)
		}
		if order != nil {
			return order, nil
		}
		if attempt < attempts {
			s.log.Debug("order not visible yet", "order_no", orderNo, "attempt", attempt)
			if err := sleepCtx(ctx, s.cfg.VerifyRetryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

func (s *OrderService) Get(ctx context.Context, orderNo string) (*models.Order, error) {
	order, err := s.orders.FindByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}
