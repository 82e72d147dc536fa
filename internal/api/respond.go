package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/digkill/web3analysis/internal/openai"
	"github.com/digkill/web3analysis/internal/service"
)

const (
	codeOK         = 0
	codeFailed     = -1
	codeGeneration = -2
	codeDuplicate  = -3
)

// envelope is the body of every /api response.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) ok(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: codeOK, Message: message, Data: data})
}

func (s *Server) fail(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: code, Message: message, Data: data})
}

// failWith maps a service error to its envelope code and a message that is
// safe to show. Anything unrecognized is logged and reported as fallback.
func (s *Server) failWith(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var validation *service.ValidationError
	var notAnalyzable *openai.NotAnalyzableError
	switch {
	case errors.As(err, &validation):
		s.fail(w, codeFailed, validation.Message, nil)
	case errors.Is(err, service.ErrInsufficientCredits):
		s.fail(w, codeFailed, "Insufficient points", nil)
	case errors.As(err, &notAnalyzable):
		msg := notAnalyzable.Reason
		if msg == "" {
			msg = "This item cannot be analyzed at the moment"
		}
		s.fail(w, codeGeneration, msg, nil)
	case errors.Is(err, service.ErrGenerationFailed):
		s.log.Warn("generation failed", "path", r.URL.Path, "err", err)
		s.fail(w, codeGeneration, "Failed to generate report", nil)
	case errors.Is(err, service.ErrDuplicateInProgress):
		s.fail(w, codeDuplicate, "Your report is being generated, please wait...", map[string]string{"status": "pending"})
	case errors.Is(err, service.ErrOrderNotFound):
		s.fail(w, codeFailed, "Order does not exist", nil)
	case errors.Is(err, service.ErrReportNotFound):
		s.fail(w, codeFailed, "Report does not exist", nil)
	case errors.Is(err, service.ErrPlanNotFound):
		s.fail(w, codeFailed, "Plan does not exist", nil)
	case errors.Is(err, service.ErrDebitAfterSave):
		s.fail(w, codeFailed, "Failed to save report or deduct credits", nil)
	case errors.Is(err, service.ErrSettlementFailed):
		s.fail(w, codeFailed, "Failed to process order", nil)
	default:
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
		s.fail(w, codeFailed, fallback, nil)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// flexID accepts a report id sent either as a JSON number or a string.
type flexID int64

func (id *flexID) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if raw == "" || raw == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", raw)
	}
	*id = flexID(n)
	return nil
}

func (id flexID) ptr() *int64 {
	if id <= 0 {
		return nil
	}
	v := int64(id)
	return &v
}
