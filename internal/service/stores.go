package service

import (
	"context"
	"time"

	"github.com/digkill/web3analysis/internal/models"
)

// Transactor runs fn as one atomic unit. Nested calls join the outer unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserStore interface {
	FindByAddress(ctx context.Context, address string) (*models.User, error)
	Ensure(ctx context.Context, user *models.User) (*models.User, bool, error)
}

type CreditStore interface {
	Get(ctx context.Context, address string) (*models.UserCredits, error)
	Credit(ctx context.Context, address string, amount int, plan models.PlanType, expiresAt *time.Time, now time.Time) error
	Debit(ctx context.Context, address string, amount int, now time.Time) (int, error)
	RecordConsumption(ctx context.Context, c *models.CreditConsumption) error
	ListConsumption(ctx context.Context, address string) ([]models.CreditConsumption, error)
	Expire(ctx context.Context, address string, now time.Time) (bool, error)
	ExpireAll(ctx context.Context, now time.Time) (int64, error)
}

type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	FindByOrderNo(ctx context.Context, orderNo string) (*models.Order, error)
	MarkPaid(ctx context.Context, orderNo, txHash string, paidAt time.Time) (bool, error)
	ListSettled(ctx context.Context, address string, now time.Time) ([]models.Order, error)
}

type ReportStore interface {
	Insert(ctx context.Context, report *models.Report) (*models.Report, error)
	GetByID(ctx context.Context, id int64) (*models.Report, error)
	List(ctx context.Context, limit int) ([]models.Report, error)
	Search(ctx context.Context, term string, limit int) ([]models.Report, error)
	FindRecent(ctx context.Context, projectName, address string, since time.Time) (*models.Report, error)
	GrantAccess(ctx context.Context, address string, reportID int64, now time.Time) (bool, error)
	HasAccess(ctx context.Context, address string, reportID int64) (bool, error)
	ListAccessible(ctx context.Context, address string) ([]models.Report, error)
}

type RequestStore interface {
	Acquire(ctx context.Context, projectName, address, requestID string, now time.Time, window time.Duration) (bool, error)
	Release(ctx context.Context, requestID string, status models.RequestStatus, now time.Time) error
	Find(ctx context.Context, projectName, address string) (*models.ReportRequest, error)
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type PlanStore interface {
	List(ctx context.Context) ([]models.Plan, error)
	ListActive(ctx context.Context) ([]models.Plan, error)
	FindActive(ctx context.Context, planType models.PlanType) ([]models.Plan, error)
	GetByID(ctx context.Context, id int64) (*models.Plan, error)
	Create(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	Update(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	Delete(ctx context.Context, id int64) error
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
