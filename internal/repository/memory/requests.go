package memory

import (
	"context"
	"sort"
	"time"

	"github.com/digkill/web3analysis/internal/models"
)

type RequestRepository struct {
	s *Store
}

func (r *RequestRepository) Acquire(ctx context.Context, projectName, address, requestID string, now time.Time, window time.Duration) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := requestKey{project: projectName, address: address}
	existing, ok := r.s.st.requests[key]
	if ok && existing.Status == models.RequestPending && existing.CreatedAt.After(now.Add(-window)) {
		return false, nil
	}
	r.s.journal(ctx, restore(r.s.st.requests, key, existing, ok))
	id := existing.ID
	if !ok {
		r.s.st.nextRequestID++
		id = r.s.st.nextRequestID
	}
	r.s.st.requests[key] = models.ReportRequest{
		ID:          id,
		ProjectName: projectName,
		Address:     address,
		RequestID:   requestID,
		Status:      models.RequestPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return true, nil
}

func (r *RequestRepository) Release(ctx context.Context, requestID string, status models.RequestStatus, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key, req := range r.s.st.requests {
		if req.RequestID == requestID && req.Status == models.RequestPending {
			r.s.journal(ctx, restore(r.s.st.requests, key, req, true))
			req.Status = status
			req.UpdatedAt = now
			r.s.st.requests[key] = req
		}
	}
	return nil
}

func (r *RequestRepository) Find(_ context.Context, projectName, address string) (*models.ReportRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.st.requests[requestKey{project: projectName, address: address}]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r *RequestRepository) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for key, req := range r.s.st.requests {
		if req.Status != models.RequestPending || req.CreatedAt.Before(cutoff) {
			r.s.journal(ctx, restore(r.s.st.requests, key, req, true))
			delete(r.s.st.requests, key)
			n++
		}
	}
	return n, nil
}

type PlanRepository struct {
	s *Store
}

func (r *PlanRepository) List(_ context.Context) ([]models.Plan, error) {
	return r.filter(func(models.Plan) bool { return true }), nil
}

func (r *PlanRepository) ListActive(_ context.Context) ([]models.Plan, error) {
	return r.filter(func(p models.Plan) bool { return p.IsActive }), nil
}

func (r *PlanRepository) FindActive(_ context.Context, planType models.PlanType) ([]models.Plan, error) {
	return r.filter(func(p models.Plan) bool { return p.IsActive && p.Type == planType }), nil
}

func (r *PlanRepository) GetByID(_ context.Context, id int64) (*models.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.nextPlanID++
	saved := *plan
	saved.ID = r.s.st.nextPlanID
	now := time.Now().UTC()
	saved.CreatedAt = now
	saved.UpdatedAt = now
	r.s.st.plans[saved.ID] = saved
	r.s.journal(ctx, restore(r.s.st.plans, saved.ID, models.Plan{}, false))
	return &saved, nil
}

func (r *PlanRepository) Update(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.st.plans[plan.ID]
	if !ok {
		return nil, nil
	}
	r.s.journal(ctx, restore(r.s.st.plans, plan.ID, existing, true))
	saved := *plan
	saved.CreatedAt = existing.CreatedAt
	saved.UpdatedAt = time.Now().UTC()
	r.s.st.plans[saved.ID] = saved
	return &saved, nil
}

func (r *PlanRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.st.plans[id]; ok {
		r.s.journal(ctx, restore(r.s.st.plans, id, existing, true))
	}
	delete(r.s.st.plans, id)
	return nil
}

func (r *PlanRepository) filter(keep func(models.Plan) bool) []models.Plan {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Plan, 0, len(r.s.st.plans))
	for _, p := range r.s.st.plans {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
