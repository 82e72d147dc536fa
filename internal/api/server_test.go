package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/models"
	"github.com/digkill/web3analysis/internal/openai"
	"github.com/digkill/web3analysis/internal/repository/memory"
	"github.com/digkill/web3analysis/internal/service"
)

type stubAnalyzer struct {
	verdict openai.Verdict
}

func (a *stubAnalyzer) CheckAnalyzable(context.Context, string) (*openai.Verdict, error) {
	v := a.verdict
	return &v, nil
}

func (a *stubAnalyzer) GenerateAnalysis(context.Context, string) (*models.ReportContent, error) {
	return &models.ReportContent{Summary: models.ReportSummary{Description: "A lending protocol", ImageDescription: "vaults"}}, nil
}

func (a *stubAnalyzer) GenerateImage(context.Context, string) (*openai.Image, error) {
	return nil, errors.New("image backend unavailable")
}

type testServer struct {
	srv    *Server
	store  *memory.Store
	guard  *service.GuardService
	ledger *service.LedgerService
	ai     *stubAnalyzer
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.Config{
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
		ReportCacheTTL:        time.Minute,
		ReportCacheSize:       16,
		GenerationMaxAttempts: 1,
		VerifyMaxAttempts:     2,
		VerifyRetryDelay:      time.Millisecond,
		RequestCeiling:        10 * time.Second,
		ExpiryNoticeWindow:    3 * 24 * time.Hour,
		AdminUsername:         "admin",
		AdminPassword:         "secret",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()

	users := service.NewUserService(store.Users())
	plans := service.NewPlanService(cfg, store.Plans())
	require.NoError(t, plans.EnsureDefaultPlans(context.Background()))
	ledger := service.NewLedgerService(cfg, log, store, store.Credits(), store.Orders(), store.Reports())
	guard := service.NewGuardService(cfg, log, store.Requests())
	reports := service.NewReportService(cfg, log, store.Reports())
	orders := service.NewOrderService(cfg, log, store, store.Orders(), plans, users, ledger, nil, nil)
	ai := &stubAnalyzer{verdict: openai.Verdict{Analyzable: true}}
	gen := service.NewGenerationService(cfg, log, store, ledger, guard, store.Reports(), ai, nil, nil)

	srv := NewServer(cfg, log, Services{
		Users:      users,
		Plans:      plans,
		Ledger:     ledger,
		Orders:     orders,
		Reports:    reports,
		Generation: gen,
	}, store.Ping)
	return &testServer{srv: srv, store: store, guard: guard, ledger: ledger, ai: ai}
}

type response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (ts *testServer) buyCredits(t *testing.T, address string) {
	t.Helper()
	_, resp := ts.do(t, http.MethodPost, "/api/create-order", map[string]any{
		"plan_type": "onetime", "user_address": address, "amount": 9.9, "credits": 700,
	})
	require.Equal(t, codeOK, resp.Code, resp.Message)
	var order models.Order
	require.NoError(t, json.Unmarshal(resp.Data, &order))

	_, resp = ts.do(t, http.MethodPost, "/api/verify-transaction", map[string]any{
		"transaction_hash": "0xfeed", "order_no": order.OrderNo,
	})
	require.Equal(t, codeOK, resp.Code, resp.Message)
}

func TestPostWithoutAddressIsUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/get-user-credits", "/api/gen-reports", "/api/consume-credits", "/api/create-order"} {
		rec, resp := ts.do(t, http.MethodPost, path, map[string]any{"projectName": "Aave"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, codeFailed, resp.Code)
		assert.Equal(t, "Unauthorized", resp.Message)
	}
}

func TestVerifyTransactionSkipsAddressGate(t *testing.T) {
	ts := newTestServer(t)
	rec, resp := ts.do(t, http.MethodPost, "/api/verify-transaction", map[string]any{
		"transaction_hash": "0xabc", "order_no": "missing",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, codeFailed, resp.Code)
	assert.Equal(t, "Order does not exist", resp.Message)
}

func TestPurchaseGenerateAndView(t *testing.T) {
	ts := newTestServer(t)
	ts.buyCredits(t, "0xalice")

	_, resp := ts.do(t, http.MethodPost, "/api/get-user-credits", map[string]any{"address": "0xalice"})
	require.Equal(t, codeOK, resp.Code)
	var balance models.CreditBalance
	require.NoError(t, json.Unmarshal(resp.Data, &balance))
	assert.Equal(t, 700, balance.LeftCredits)
	assert.Equal(t, 700, balance.OneTimeCredits)

	_, resp = ts.do(t, http.MethodPost, "/api/gen-reports", map[string]any{"projectName": "Aave", "address": "0xalice"})
	require.Equal(t, codeOK, resp.Code, resp.Message)
	var report models.Report
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, "Aave", report.ProjectName)
	assert.Equal(t, "/placeholder.jpg", report.ImageURL)

	_, resp = ts.do(t, http.MethodGet, "/api/get-report?id=1", nil)
	require.Equal(t, codeOK, resp.Code)

	_, resp = ts.do(t, http.MethodPost, "/api/check-user-report", map[string]any{"address": "0xalice", "reportId": "1"})
	require.Equal(t, codeOK, resp.Code)
	assert.JSONEq(t, `{"has_purchased":true}`, string(resp.Data))

	ts.buyCredits(t, "0xbob")
	_, resp = ts.do(t, http.MethodPost, "/api/consume-credits", map[string]any{"address": "0xbob", "reportId": 1, "type": "view"})
	require.Equal(t, codeOK, resp.Code, resp.Message)
	assert.JSONEq(t, `{"left_credits":695}`, string(resp.Data))

	_, resp = ts.do(t, http.MethodPost, "/api/consume-credits", map[string]any{"address": "0xbob", "reportId": 1, "type": "view"})
	require.Equal(t, codeOK, resp.Code)
	assert.JSONEq(t, `{"already_purchased":true}`, string(resp.Data))

	_, resp = ts.do(t, http.MethodPost, "/api/get-user-reports", map[string]any{"address": "0xbob"})
	require.Equal(t, codeOK, resp.Code)
	var owned []models.Report
	require.NoError(t, json.Unmarshal(resp.Data, &owned))
	assert.Len(t, owned, 1)
}

func TestGenerateErrorCodes(t *testing.T) {
	t.Run("insufficient credits", func(t *testing.T) {
		ts := newTestServer(t)
		_, resp := ts.do(t, http.MethodPost, "/api/gen-reports", map[string]any{"projectName": "Aave", "address": "0xpoor"})
		assert.Equal(t, codeFailed, resp.Code)
		assert.Equal(t, "Insufficient points", resp.Message)
	})

	t.Run("not analyzable", func(t *testing.T) {
		ts := newTestServer(t)
		ts.buyCredits(t, "0xcarol")
		ts.ai.verdict = openai.Verdict{Analyzable: false, Reason: "Not a Web3 project"}
		_, resp := ts.do(t, http.MethodPost, "/api/gen-reports", map[string]any{"projectName": "Coffee", "address": "0xcarol"})
		assert.Equal(t, codeGeneration, resp.Code)
		assert.Equal(t, "Not a Web3 project", resp.Message)
	})

	t.Run("duplicate in progress", func(t *testing.T) {
		ts := newTestServer(t)
		ts.buyCredits(t, "0xdan")
		_, err := ts.guard.Acquire(context.Background(), "Aave", "0xdan")
		require.NoError(t, err)
		_, resp := ts.do(t, http.MethodPost, "/api/gen-reports", map[string]any{"projectName": "Aave", "address": "0xdan"})
		assert.Equal(t, codeDuplicate, resp.Code)
		assert.Equal(t, "Your report is being generated, please wait...", resp.Message)
	})

	t.Run("missing project", func(t *testing.T) {
		ts := newTestServer(t)
		_, resp := ts.do(t, http.MethodPost, "/api/gen-reports", map[string]any{"address": "0xdan"})
		assert.Equal(t, codeFailed, resp.Code)
		assert.Equal(t, "Project name is required", resp.Message)
	})
}

func TestGenerateRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.RateLimitPerMinute = 1 })
	_, resp := ts.do(t, http.MethodPost, "/api/gen-reports", map[string]any{"projectName": "Aave", "address": "0xspam"})
	assert.Equal(t, "Insufficient points", resp.Message)

	_, resp = ts.do(t, http.MethodPost, "/api/gen-reports", map[string]any{"projectName": "Aave", "address": "0xspam"})
	assert.Equal(t, codeFailed, resp.Code)
	assert.Equal(t, "Too many requests, please try again later", resp.Message)
}

func TestReadEndpoints(t *testing.T) {
	ts := newTestServer(t)

	_, resp := ts.do(t, http.MethodGet, "/api/get-report", nil)
	assert.Equal(t, "Report ID missing", resp.Message)

	_, resp = ts.do(t, http.MethodGet, "/api/get-report?id=7", nil)
	assert.Equal(t, "Report does not exist", resp.Message)

	_, resp = ts.do(t, http.MethodGet, "/api/search-reports", nil)
	assert.Equal(t, codeFailed, resp.Code)
	assert.Equal(t, "Search term is required", resp.Message)

	_, resp = ts.do(t, http.MethodGet, "/api/get-reports", nil)
	assert.Equal(t, codeOK, resp.Code)
	assert.JSONEq(t, `[]`, string(resp.Data))

	_, resp = ts.do(t, http.MethodGet, "/api/plans", nil)
	assert.Equal(t, codeOK, resp.Code)
	var plans []models.Plan
	require.NoError(t, json.Unmarshal(resp.Data, &plans))
	assert.Len(t, plans, 2)

	_, resp = ts.do(t, http.MethodPost, "/api/check-expiring-credits", map[string]any{"address": "0xnobody"})
	assert.Equal(t, codeOK, resp.Code)
	assert.Equal(t, "null", string(resp.Data))
}

func TestCheckExpiringCredits(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.MonthlyPlanDuration = 48 * time.Hour })
	require.NoError(t, ts.ledger.Credit(context.Background(), "0xsoon", 1000, models.PlanMonthly))

	_, resp := ts.do(t, http.MethodPost, "/api/check-expiring-credits", map[string]any{"address": "0xsoon"})
	require.Equal(t, codeOK, resp.Code)
	assert.JSONEq(t, `{"isExpiring":true,"daysLeft":2,"credits":1000}`, string(resp.Data))
}

func TestUserInfoRegistersUser(t *testing.T) {
	ts := newTestServer(t)
	_, resp := ts.do(t, http.MethodPost, "/api/get-user-info", map[string]any{"address": "0xnewcomer"})
	require.Equal(t, codeOK, resp.Code)
	assert.Contains(t, string(resp.Data), `"credits"`)

	user, err := ts.store.Users().FindByAddress(context.Background(), "0xnewcomer")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "User_0xnewc", user.Nickname)
}

func TestCreateOrderRejectsMismatchedPlan(t *testing.T) {
	ts := newTestServer(t)
	_, resp := ts.do(t, http.MethodPost, "/api/create-order", map[string]any{
		"plan_type": "onetime", "user_address": "0xa", "amount": "1.00", "credits": 700,
	})
	assert.Equal(t, codeFailed, resp.Code)
	assert.Contains(t, resp.Message, "No active onetime plan")
}

func TestAdminPlans(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/plans", nil)
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body := `{"plan_type":"onetime","title":"Starter","price":"4.90","credits":300}`
	req = httptest.NewRequest(http.MethodPost, "/admin/plans", strings.NewReader(body))
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var plan models.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.True(t, plan.Price.Equal(decimal.RequireFromString("4.9")))

	req = httptest.NewRequest(http.MethodPut, "/admin/plans/999", strings.NewReader(`{"title":"x"}`))
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/plans", strings.NewReader(`{"plan_type":"weekly","title":"x","price":"1","credits":1}`))
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.srv.health = func(context.Context) error { return errors.New("db gone") }
	rec, _ = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "web3analysis_")
}
