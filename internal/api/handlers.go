package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/digkill/web3analysis/internal/models"
	"github.com/digkill/web3analysis/internal/service"
)

type createOrderRequest struct {
	PlanType    models.PlanType `json:"plan_type"`
	UserAddress string          `json:"user_address"`
	Amount      decimal.Decimal `json:"amount"`
	Credits     int             `json:"credits"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, codeFailed, "Invalid request body", nil)
		return
	}
	address := req.UserAddress
	if address == "" {
		address = addressFrom(r.Context())
	}
	order, err := s.svc.Orders.Create(r.Context(), service.CreateOrderInput{
		Address:  address,
		PlanType: req.PlanType,
		Amount:   req.Amount,
		Credits:  req.Credits,
	})
	if err != nil {
		s.failWith(w, r, err, "Failed to create order")
		return
	}
	s.ok(w, "ok", order)
}

type verifyTransactionRequest struct {
	TransactionHash string `json:"transaction_hash"`
	OrderNo         string `json:"order_no"`
}

func (s *Server) handleVerifyTransaction(w http.ResponseWriter, r *http.Request) {
	var req verifyTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, codeFailed, "Invalid request body", nil)
		return
	}
	if err := s.svc.Orders.Verify(r.Context(), service.VerifyInput{
		TransactionHash: req.TransactionHash,
		OrderNo:         req.OrderNo,
	}); err != nil {
		s.failWith(w, r, err, "Failed to process order")
		return
	}
	s.ok(w, "success", nil)
}

type generateRequest struct {
	ProjectName string `json:"projectName"`
	Address     string `json:"address"`
}

// handleGenerateReport detaches the workflow from the client connection and
// bounds it with the request ceiling instead.
func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, codeFailed, "Invalid request body", nil)
		return
	}
	address := req.Address
	if address == "" {
		address = addressFrom(r.Context())
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.RequestCeiling)
	defer cancel()

	res, err := s.svc.Generation.Generate(ctx, service.GenerateInput{ProjectName: req.ProjectName, Address: address})
	if err != nil {
		s.failWith(w, r, err, "Failed to generate report")
		return
	}
	s.ok(w, "", res.Report)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("id")), 10, 64)
	if err != nil || id <= 0 {
		s.fail(w, codeFailed, "Report ID missing", nil)
		return
	}
	report, err := s.svc.Reports.GetByID(r.Context(), id)
	if err != nil {
		s.failWith(w, r, err, "Failed to get report details")
		return
	}
	s.ok(w, "ok", report)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.svc.Reports.List(r.Context())
	if err != nil {
		s.failWith(w, r, err, "Get reports failed")
		return
	}
	s.ok(w, "ok", nonNil(reports))
}

func (s *Server) handleSearchReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.svc.Reports.Search(r.Context(), r.URL.Query().Get("searchTerm"))
	if err != nil {
		s.failWith(w, r, err, "Search failed")
		return
	}
	s.ok(w, "success", nonNil(reports))
}

func (s *Server) handleActivePlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.svc.Plans.ListActive(r.Context())
	if err != nil {
		s.failWith(w, r, err, "Failed to get plans")
		return
	}
	s.ok(w, "ok", nonNil(plans))
}

type addressRequest struct {
	Address string `json:"address"`
}

// decodeAddress reads the body address, falling back to the gate's value.
func (s *Server) decodeAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, codeFailed, "Invalid request body", nil)
		return "", false
	}
	if strings.TrimSpace(req.Address) == "" {
		req.Address = addressFrom(r.Context())
	}
	return strings.TrimSpace(req.Address), true
}

func (s *Server) handleUserCredits(w http.ResponseWriter, r *http.Request) {
	address, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	balance, err := s.svc.Ledger.Balance(r.Context(), address)
	if err != nil {
		s.failWith(w, r, err, "Failed to get credits")
		return
	}
	s.ok(w, "success", balance)
}

func (s *Server) handleUserReports(w http.ResponseWriter, r *http.Request) {
	address, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	reports, err := s.svc.Reports.ListAccessible(r.Context(), address)
	if err != nil {
		s.failWith(w, r, err, "Failed to get reports")
		return
	}
	s.ok(w, "", nonNil(reports))
}

type reportAccessRequest struct {
	Address  string                 `json:"address"`
	ReportID flexID                 `json:"reportId"`
	Type     models.ConsumptionType `json:"type"`
}

func (s *Server) handleCheckUserReport(w http.ResponseWriter, r *http.Request) {
	var req reportAccessRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, codeFailed, "Parameter error", nil)
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		req.Address = addressFrom(r.Context())
	}
	owned, err := s.svc.Reports.HasAccess(r.Context(), req.Address, int64(req.ReportID))
	if err != nil {
		s.failWith(w, r, err, "Check failed")
		return
	}
	s.ok(w, "", map[string]bool{"has_purchased": owned})
}

func (s *Server) handleConsumeCredits(w http.ResponseWriter, r *http.Request) {
	var req reportAccessRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, codeFailed, "Parameter error", nil)
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		req.Address = addressFrom(r.Context())
	}
	res, err := s.svc.Ledger.Consume(r.Context(), service.ConsumeRequest{
		Address:  req.Address,
		ReportID: req.ReportID.ptr(),
		Type:     req.Type,
	})
	if err != nil {
		s.failWith(w, r, err, "Points consumption failed")
		return
	}
	if res.AlreadyPurchased {
		s.ok(w, "This report has been purchased", map[string]bool{"already_purchased": true})
		return
	}
	s.ok(w, "success", map[string]int{"left_credits": res.LeftCredits})
}

func (s *Server) handleExpiringCredits(w http.ResponseWriter, r *http.Request) {
	address, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	notice, err := s.svc.Ledger.Expiring(r.Context(), address)
	if err != nil {
		s.failWith(w, r, err, "Failed to check expiring credits")
		return
	}
	// A nil notice encodes as data: null.
	s.ok(w, "", notice)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	address, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	if address == "" {
		s.fail(w, codeFailed, "Wallet not connected", nil)
		return
	}
	if _, created, err := s.svc.Users.Ensure(r.Context(), address); err != nil {
		s.log.Warn("ensure user", "user_address", address, "err", err)
	} else if created {
		s.log.Info("user registered", "user_address", address)
	}
	balance, err := s.svc.Ledger.Balance(r.Context(), address)
	if err != nil {
		s.failWith(w, r, err, "Failed to process user information")
		return
	}
	s.ok(w, "ok", map[string]any{"credits": balance})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
