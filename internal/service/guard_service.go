package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/models"
)

// GuardService keeps at most one generation in flight per (project, wallet).
// The claim is a conditional write in the shared store, so it holds across
// server instances.
type GuardService struct {
	window time.Duration
	log    *slog.Logger
	store  RequestStore
	now    func() time.Time
}

// Lease is a held guard slot.
type Lease struct {
	RequestID   string
	ProjectName string
	Address     string
}

func NewGuardService(cfg config.Config, log *slog.Logger, store RequestStore) *GuardService {
	return &GuardService{window: cfg.GuardWindow, log: log, store: store, now: utcNow}
}

// Acquire claims the slot or fails with ErrDuplicateInProgress when a
// pending entry younger than the window exists.
func (s *GuardService) Acquire(ctx context.Context, projectName, address string) (*Lease, error) {
	lease := &Lease{RequestID: uuid.NewString(), ProjectName: projectName, Address: address}
	ok, err := s.store.Acquire(ctx, projectName, address, lease.RequestID, s.now(), s.window)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDuplicateInProgress
	}
	return lease, nil
}

// Release marks the lease completed or failed. It is meant to run after the
// caller's context may already be cancelled.
func (s *GuardService) Release(ctx context.Context, lease *Lease, status models.RequestStatus) {
	if lease == nil {
		return
	}
	if err := s.store.Release(ctx, lease.RequestID, status, s.now()); err != nil {
		s.log.Error("release report request", "request_id", lease.RequestID, "project", lease.ProjectName, "user_address", lease.Address, "err", err)
	}
}

// Status returns the current guard entry for the pair, if any.
func (s *GuardService) Status(ctx context.Context, projectName, address string) (*models.ReportRequest, error) {
	return s.store.Find(ctx, projectName, address)
}

// Purge removes finished entries and pending ones older than the window.
func (s *GuardService) Purge(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeStale(ctx, s.now().Add(-s.window))
	if err != nil {
		return 0, fmt.Errorf("purge guard entries: %w", err)
	}
	return n, nil
}
