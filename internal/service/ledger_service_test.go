package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/web3analysis/internal/models"
)

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const addr = "0xconcurrent"

	require.NoError(t, env.ledger.Credit(ctx, addr, 95, models.PlanOneTime))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.Debit(ctx, DebitRequest{Address: addr, Amount: 10, Reason: models.ConsumeGenerate})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientCredits)
		}()
	}
	wg.Wait()

	row, err := env.store.Credits().Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, 9, succeeded)
	assert.Equal(t, 5, row.Credits)
	assert.GreaterOrEqual(t, row.Credits, 0)

	records, err := env.ledger.Consumption(ctx, addr)
	require.NoError(t, err)
	total := 0
	for _, r := range records {
		total += r.Amount
	}
	assert.Equal(t, row.UsedCredits, total)
}

func TestCreditOrderDoesNotMatter(t *testing.T) {
	ctx := context.Background()

	a := newTestEnv(t)
	require.NoError(t, a.ledger.Credit(ctx, "0xa", 300, models.PlanOneTime))
	require.NoError(t, a.ledger.Credit(ctx, "0xa", 700, models.PlanOneTime))

	b := newTestEnv(t)
	require.NoError(t, b.ledger.Credit(ctx, "0xa", 700, models.PlanOneTime))
	require.NoError(t, b.ledger.Credit(ctx, "0xa", 300, models.PlanOneTime))

	rowA, err := a.store.Credits().Get(ctx, "0xa")
	require.NoError(t, err)
	rowB, err := b.store.Credits().Get(ctx, "0xa")
	require.NoError(t, err)
	assert.Equal(t, 1000, rowA.Credits)
	assert.Equal(t, rowA.Credits, rowB.Credits)
}

func TestMonthlyCreditResetsExpiryOneTimeKeepsIt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	env.ledger.now = func() time.Time { return t0 }

	require.NoError(t, env.ledger.Credit(ctx, "0xm", 1000, models.PlanMonthly))
	env.ledger.now = func() time.Time { return t0.Add(24 * time.Hour) }
	require.NoError(t, env.ledger.Credit(ctx, "0xm", 700, models.PlanOneTime))

	row, err := env.store.Credits().Get(ctx, "0xm")
	require.NoError(t, err)
	require.NotNil(t, row.ExpiresAt)
	assert.Equal(t, t0.Add(30*24*time.Hour), *row.ExpiresAt)
	assert.Equal(t, models.PlanOneTime, row.Plan)
	assert.Equal(t, 1700, row.Credits)
}

func TestExpireIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	env.ledger.now = func() time.Time { return t0 }
	require.NoError(t, env.ledger.Credit(ctx, "0xe", 1000, models.PlanMonthly))

	env.ledger.now = func() time.Time { return t0.Add(31 * 24 * time.Hour) }
	first, err := env.ledger.Expire(ctx, "0xe")
	require.NoError(t, err)
	assert.True(t, first)
	afterFirst, err := env.store.Credits().Get(ctx, "0xe")
	require.NoError(t, err)

	second, err := env.ledger.Expire(ctx, "0xe")
	require.NoError(t, err)
	assert.False(t, second)
	afterSecond, err := env.store.Credits().Get(ctx, "0xe")
	require.NoError(t, err)

	assert.Equal(t, 0, afterSecond.Credits)
	assert.Equal(t, afterFirst, afterSecond)
}

func TestOneTimeCreditsNeverExpire(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.ledger.Credit(ctx, "0xo", 700, models.PlanOneTime))

	env.ledger.now = func() time.Time { return time.Now().AddDate(10, 0, 0) }
	expired, err := env.ledger.Expire(ctx, "0xo")
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestConsumeViewChargesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "0xviewer")

	report, err := env.store.Reports().Insert(ctx, &models.Report{ProjectName: "Lido", Address: "0xauthor", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	first, err := env.ledger.Consume(ctx, ConsumeRequest{Address: "0xviewer", ReportID: &report.ID, Type: models.ConsumeView})
	require.NoError(t, err)
	assert.False(t, first.AlreadyPurchased)
	assert.Equal(t, 695, first.LeftCredits)

	second, err := env.ledger.Consume(ctx, ConsumeRequest{Address: "0xviewer", ReportID: &report.ID, Type: models.ConsumeView})
	require.NoError(t, err)
	assert.True(t, second.AlreadyPurchased)

	row, err := env.store.Credits().Get(ctx, "0xviewer")
	require.NoError(t, err)
	assert.Equal(t, 5, row.UsedCredits)

	owned, err := env.report.HasAccess(ctx, "0xviewer", report.ID)
	require.NoError(t, err)
	assert.True(t, owned)
}

func TestConcurrentViewsOfSameReportChargeOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "0xtabs")
	report, err := env.store.Reports().Insert(ctx, &models.Report{ProjectName: "Aave", Address: "0xauthor", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.Consume(ctx, ConsumeRequest{Address: "0xtabs", ReportID: &report.ID, Type: models.ConsumeView})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	row, err := env.store.Credits().Get(ctx, "0xtabs")
	require.NoError(t, err)
	assert.Equal(t, 5, row.UsedCredits)
}

func TestConsumeViewInsufficientLeavesNoGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	report, err := env.store.Reports().Insert(ctx, &models.Report{ProjectName: "Aave", Address: "0xauthor", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	_, err = env.ledger.Consume(ctx, ConsumeRequest{Address: "0xbroke", ReportID: &report.ID, Type: models.ConsumeView})
	require.ErrorIs(t, err, ErrInsufficientCredits)

	owned, err := env.report.HasAccess(ctx, "0xbroke", report.ID)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestConsumeUnknownReport(t *testing.T) {
	env := newTestEnv(t)
	id := int64(99)
	_, err := env.ledger.Consume(context.Background(), ConsumeRequest{Address: "0xa", ReportID: &id, Type: models.ConsumeView})
	require.ErrorIs(t, err, ErrReportNotFound)
}

func TestBalanceRecomputesFromSettledOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "0xbal")

	_, err := env.ledger.Debit(ctx, DebitRequest{Address: "0xbal", Amount: 10, Reason: models.ConsumeGenerate})
	require.NoError(t, err)

	balance, err := env.ledger.Balance(ctx, "0xbal")
	require.NoError(t, err)
	assert.Equal(t, 700, balance.OneTimeCredits)
	assert.Equal(t, 0, balance.MonthlyCredits)
	assert.Equal(t, 700, balance.TotalCredits)
	assert.Equal(t, 10, balance.UsedCredits)
	assert.Equal(t, 690, balance.LeftCredits)
	assert.Nil(t, balance.ExpiresAt)
}

func TestBalanceClampsToZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.ledger.Credit(ctx, "0xdrift", 50, models.PlanOneTime))
	_, err := env.ledger.Debit(ctx, DebitRequest{Address: "0xdrift", Amount: 20, Reason: models.ConsumeGenerate})
	require.NoError(t, err)

	balance, err := env.ledger.Balance(ctx, "0xdrift")
	require.NoError(t, err)
	assert.Equal(t, 0, balance.TotalCredits)
	assert.Equal(t, 0, balance.LeftCredits)
}

func TestExpiring(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	env.ledger.now = func() time.Time { return t0 }
	require.NoError(t, env.ledger.Credit(ctx, "0xsoon", 1000, models.PlanMonthly))

	notice, err := env.ledger.Expiring(ctx, "0xsoon")
	require.NoError(t, err)
	assert.Nil(t, notice)

	env.ledger.now = func() time.Time { return t0.Add(27*24*time.Hour + 12*time.Hour) }
	notice, err = env.ledger.Expiring(ctx, "0xsoon")
	require.NoError(t, err)
	require.NotNil(t, notice)
	assert.True(t, notice.IsExpiring)
	assert.Equal(t, 3, notice.DaysLeft)
	assert.Equal(t, 1000, notice.Credits)

	env.ledger.now = func() time.Time { return t0.Add(31 * 24 * time.Hour) }
	notice, err = env.ledger.Expiring(ctx, "0xsoon")
	require.NoError(t, err)
	assert.Nil(t, notice)
}
