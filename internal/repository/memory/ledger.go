package memory

import (
	"context"
	"slices"
	"time"

	"github.com/digkill/web3analysis/internal/models"
	"github.com/digkill/web3analysis/internal/repository"
)

type UserRepository struct {
	s *Store
}

func (r *UserRepository) FindByAddress(_ context.Context, address string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[address]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepository) Ensure(ctx context.Context, user *models.User) (*models.User, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.st.users[user.Address]; ok {
		return &existing, false, nil
	}
	r.s.journal(ctx, restore(r.s.st.users, user.Address, models.User{}, false))
	r.s.st.users[user.Address] = *user
	out := *user
	return &out, true, nil
}

type CreditRepository struct {
	s *Store
}

func (r *CreditRepository) Get(_ context.Context, address string) (*models.UserCredits, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.credits[address]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *CreditRepository) Credit(ctx context.Context, address string, amount int, plan models.PlanType, expiresAt *time.Time, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.credits[address]
	r.s.journal(ctx, restore(r.s.st.credits, address, c, ok))
	if !ok {
		r.s.st.credits[address] = models.UserCredits{
			Address:   address,
			Credits:   amount,
			Plan:      plan,
			ExpiresAt: copyTime(expiresAt),
			UpdatedAt: now,
		}
		return nil
	}
	c.Credits += amount
	if plan == models.PlanMonthly {
		c.ExpiresAt = copyTime(expiresAt)
	}
	c.Plan = plan
	c.UpdatedAt = now
	r.s.st.credits[address] = c
	return nil
}

func (r *CreditRepository) Debit(ctx context.Context, address string, amount int, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.credits[address]
	if !ok || c.Credits < amount {
		return 0, repository.ErrInsufficientCredits
	}
	r.s.journal(ctx, restore(r.s.st.credits, address, c, true))
	c.Credits -= amount
	c.UsedCredits += amount
	c.UpdatedAt = now
	r.s.st.credits[address] = c
	return c.Credits, nil
}

func (r *CreditRepository) RecordConsumption(ctx context.Context, c *models.CreditConsumption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.nextConsumptionID++
	c.ID = r.s.st.nextConsumptionID
	r.s.st.consumption = append(r.s.st.consumption, *c)
	id := c.ID
	r.s.journal(ctx, func() {
		r.s.st.consumption = slices.DeleteFunc(r.s.st.consumption, func(x models.CreditConsumption) bool {
			return x.ID == id
		})
	})
	return nil
}

func (r *CreditRepository) ListConsumption(_ context.Context, address string) ([]models.CreditConsumption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.CreditConsumption
	for _, c := range r.s.st.consumption {
		if c.Address == address {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *CreditRepository) Expire(ctx context.Context, address string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.credits[address]
	if !ok || !lapsed(c, now) {
		return false, nil
	}
	r.s.journal(ctx, restore(r.s.st.credits, address, c, true))
	c.Credits = 0
	c.UpdatedAt = now
	r.s.st.credits[address] = c
	return true, nil
}

func (r *CreditRepository) ExpireAll(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for addr, c := range r.s.st.credits {
		if !lapsed(c, now) {
			continue
		}
		r.s.journal(ctx, restore(r.s.st.credits, addr, c, true))
		c.Credits = 0
		c.UpdatedAt = now
		r.s.st.credits[addr] = c
		n++
	}
	return n, nil
}

func lapsed(c models.UserCredits, now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now) && c.Credits != 0
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.orders[o.OrderNo]; ok {
		return repository.ErrDuplicateOrder
	}
	r.s.journal(ctx, restore(r.s.st.orders, o.OrderNo, models.Order{}, false))
	r.s.st.orders[o.OrderNo] = *o
	return nil
}

func (r *OrderRepository) FindByOrderNo(_ context.Context, orderNo string) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.st.orders[orderNo]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, orderNo, txHash string, paidAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.st.orders[orderNo]
	if !ok || o.Status != models.OrderPending {
		return false, nil
	}
	r.s.journal(ctx, restore(r.s.st.orders, orderNo, o, true))
	o.Status = models.OrderPaid
	o.TransactionHash = txHash
	o.PaidAt = &paidAt
	r.s.st.orders[orderNo] = o
	return true, nil
}

func (r *OrderRepository) ListSettled(_ context.Context, address string, now time.Time) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, o := range r.s.st.orders {
		if o.Address == address && o.Status == models.OrderPaid && o.ExpiredAt.After(now) {
			out = append(out, o)
		}
	}
	return out, nil
}
