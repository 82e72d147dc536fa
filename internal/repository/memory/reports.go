package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/digkill/web3analysis/internal/models"
)

type ReportRepository struct {
	s *Store
}

func (r *ReportRepository) Insert(ctx context.Context, report *models.Report) (*models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.nextReportID++
	saved := *report
	saved.ID = r.s.st.nextReportID
	r.s.st.reports[saved.ID] = saved
	r.s.journal(ctx, restore(r.s.st.reports, saved.ID, models.Report{}, false))
	return &saved, nil
}

func (r *ReportRepository) GetByID(_ context.Context, id int64) (*models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.st.reports[id]
	if !ok {
		return nil, nil
	}
	return &report, nil
}

func (r *ReportRepository) List(_ context.Context, limit int) ([]models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return newestFirst(r.s.st.reports, limit, func(models.Report) bool { return true }), nil
}

func (r *ReportRepository) Search(_ context.Context, term string, limit int) ([]models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	needle := strings.ToLower(term)
	return newestFirst(r.s.st.reports, limit, func(rep models.Report) bool {
		return strings.Contains(strings.ToLower(rep.ProjectName), needle)
	}), nil
}

func (r *ReportRepository) FindRecent(_ context.Context, projectName, address string, since time.Time) (*models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	found := newestFirst(r.s.st.reports, 1, func(rep models.Report) bool {
		return rep.ProjectName == projectName && rep.Address == address && !rep.CreatedAt.Before(since)
	})
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r *ReportRepository) GrantAccess(ctx context.Context, address string, reportID int64, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := grantKey{address: address, reportID: reportID}
	if _, ok := r.s.st.grants[key]; ok {
		return false, nil
	}
	r.s.journal(ctx, restore(r.s.st.grants, key, models.UserReport{}, false))
	r.s.st.grants[key] = models.UserReport{Address: address, ReportID: reportID, CreatedAt: now}
	return true, nil
}

func (r *ReportRepository) HasAccess(_ context.Context, address string, reportID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.st.grants[grantKey{address: address, reportID: reportID}]
	return ok, nil
}

func (r *ReportRepository) ListAccessible(_ context.Context, address string) ([]models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var grants []models.UserReport
	for key, g := range r.s.st.grants {
		if key.address == address {
			grants = append(grants, g)
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].ReportID > grants[j].ReportID
		}
		return grants[i].CreatedAt.After(grants[j].CreatedAt)
	})
	out := make([]models.Report, 0, len(grants))
	for _, g := range grants {
		if report, ok := r.s.st.reports[g.ReportID]; ok {
			out = append(out, report)
		}
	}
	return out, nil
}

func newestFirst(reports map[int64]models.Report, limit int, keep func(models.Report) bool) []models.Report {
	out := make([]models.Report, 0)
	for _, report := range reports {
		if keep(report) {
			out = append(out, report)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
