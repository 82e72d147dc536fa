package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/models"
)

const (
	listReportsLimit  = 50
	searchReportLimit = 10
)

// ReportService reads reports through a TTL cache keyed by id. Entries are
// never invalidated on write; they age out.
type ReportService struct {
	log     *slog.Logger
	reports ReportStore
	cache   *expirable.LRU[int64, models.Report]
}

func NewReportService(cfg config.Config, log *slog.Logger, reports ReportStore) *ReportService {
	size := cfg.ReportCacheSize
	if size <= 0 {
		size = 1024
	}
	return &ReportService{
		log:     log,
		reports: reports,
		cache:   expirable.NewLRU[int64, models.Report](size, nil, cfg.ReportCacheTTL),
	}
}

func (s *ReportService) GetByID(ctx context.Context, id int64) (*models.Report, error) {
	if id <= 0 {
		return nil, invalid("Report ID missing")
	}
	if cached, ok := s.cache.Get(id); ok {
		return &cached, nil
	}
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if report == nil {
		return nil, ErrReportNotFound
	}
	s.cache.Add(id, *report)
	return report, nil
}

func (s *ReportService) List(ctx context.Context) ([]models.Report, error) {
	return s.reports.List(ctx, listReportsLimit)
}

func (s *ReportService) Search(ctx context.Context, term string) ([]models.Report, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, invalid("Search term is required")
	}
	return s.reports.Search(ctx, term, searchReportLimit)
}

func (s *ReportService) ListAccessible(ctx context.Context, address string) ([]models.Report, error) {
	if strings.TrimSpace(address) == "" {
		return nil, invalid("Address cannot be empty")
	}
	return s.reports.ListAccessible(ctx, address)
}

func (s *ReportService) HasAccess(ctx context.Context, address string, reportID int64) (bool, error) {
	if strings.TrimSpace(address) == "" || reportID <= 0 {
		return false, invalid("Parameter error")
	}
	return s.reports.HasAccess(ctx, address, reportID)
}
