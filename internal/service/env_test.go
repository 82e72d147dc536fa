package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/models"
	"github.com/digkill/web3analysis/internal/openai"
	"github.com/digkill/web3analysis/internal/repository/memory"
)

func testConfig() config.Config {
	return config.Config{
		PlaceholderImageURL:   "/placeholder.jpg",
		PaymentNetwork:        "polygon",
		PaymentTokenAddress:   "0xtoken",
		PaymentTokenDecimals:  6,
		MonthlyPlanPrice:      decimal.RequireFromString("9.9"),
		MonthlyPlanCredits:    1000,
		OneTimePlanPrice:      decimal.RequireFromString("9.9"),
		OneTimePlanCredits:    700,
		MonthlyPlanDuration:   30 * 24 * time.Hour,
		OneTimeOrderDuration:  50 * 365 * 24 * time.Hour,
		GenerationCost:        10,
		ViewCost:              5,
		GuardWindow:           5 * time.Minute,
		RecentReportWindow:    5 * time.Minute,
		ReportCacheTTL:        5 * time.Minute,
		ReportCacheSize:       16,
		GenerationMaxAttempts: 3,
		GenerationBackoff:     time.Millisecond,
		VerifyMaxAttempts:     5,
		VerifyRetryDelay:      time.Millisecond,
		ExpiryNoticeWindow:    3 * 24 * time.Hour,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAnalyzer struct {
	mu            sync.Mutex
	verdict       openai.Verdict
	checkErr      error
	analysisErrs  []error
	content       models.ReportContent
	imageErr      error
	analysisCalls int
	block         chan struct{}
}

func (f *fakeAnalyzer) CheckAnalyzable(ctx context.Context, _ string) (*openai.Verdict, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	v := f.verdict
	return &v, nil
}

func (f *fakeAnalyzer) GenerateAnalysis(context.Context, string) (*models.ReportContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analysisCalls++
	if len(f.analysisErrs) > 0 {
		err := f.analysisErrs[0]
		f.analysisErrs = f.analysisErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	c := f.content
	return &c, nil
}

func (f *fakeAnalyzer) GenerateImage(context.Context, string) (*openai.Image, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return &openai.Image{URL: "https://ai.example/tmp.png"}, nil
}

func (f *fakeAnalyzer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analysisCalls
}

type fakeImages struct {
	err     error
	uploads int
}

func (f *fakeImages) UploadFromURL(context.Context, string) (string, error) {
	f.uploads++
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/reports/1.png", nil
}

type testEnv struct {
	cfg    config.Config
	store  *memory.Store
	users  *UserService
	plans  *PlanService
	ledger *LedgerService
	guard  *GuardService
	report *ReportService
	orders *OrderService
	gen    *GenerationService
	ai     *fakeAnalyzer
	images *fakeImages
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	log := discardLogger()
	store := memory.NewStore()

	env := &testEnv{cfg: cfg, store: store}
	env.users = NewUserService(store.Users())
	env.plans = NewPlanService(cfg, store.Plans())
	require.NoError(t, env.plans.EnsureDefaultPlans(context.Background()))
	env.ledger = NewLedgerService(cfg, log, store, store.Credits(), store.Orders(), store.Reports())
	env.guard = NewGuardService(cfg, log, store.Requests())
	env.report = NewReportService(cfg, log, store.Reports())
	env.orders = NewOrderService(cfg, log, store, store.Orders(), env.plans, env.users, env.ledger, nil, nil)
	env.ai = &fakeAnalyzer{
		verdict: openai.Verdict{Analyzable: true},
		content: models.ReportContent{
			Summary: models.ReportSummary{Description: "An L2 network", ImageDescription: "layers of light"},
		},
	}
	env.images = &fakeImages{}
	env.gen = NewGenerationService(cfg, log, store, env.ledger, env.guard, store.Reports(), env.ai, env.images, nil)
	return env
}

// fund creates and settles a one-time order so both the ledger row and the
// settled-order totals reflect the purchase.
func (e *testEnv) fund(t *testing.T, address string) {
	t.Helper()
	ctx := context.Background()
	order, err := e.orders.Create(ctx, CreateOrderInput{
		Address:  address,
		PlanType: models.PlanOneTime,
		Amount:   decimal.RequireFromString("9.9"),
		Credits:  700,
	})
	require.NoError(t, err)
	require.NoError(t, e.orders.Verify(ctx, VerifyInput{TransactionHash: "0xhash", OrderNo: order.OrderNo}))
}
