// Package memory keeps every table in process memory. It backs the dev
// storage driver and the service tests; it is not shared across instances.
package memory

import (
	"context"
	"sync"

	"github.com/digkill/web3analysis/internal/models"
)

type grantKey struct {
	address  string
	reportID int64
}

type requestKey struct {
	project string
	address string
}

type state struct {
	users       map[string]models.User
	credits     map[string]models.UserCredits
	consumption []models.CreditConsumption
	orders      map[string]models.Order
	plans       map[int64]models.Plan
	reports     map[int64]models.Report
	grants      map[grantKey]models.UserReport
	requests    map[requestKey]models.ReportRequest

	nextConsumptionID int64
	nextReportID      int64
	nextPlanID        int64
	nextRequestID     int64
}

// Store owns the tables. Each repository method is atomic on its own;
// WithinTx serializes whole units of work and, on error, reverts only the
// rows that unit wrote. Writes made outside the transaction survive.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   state
	undo []func()
}

func NewStore() *Store {
	return &Store{st: state{
		users:    make(map[string]models.User),
		credits:  make(map[string]models.UserCredits),
		orders:   make(map[string]models.Order),
		plans:    make(map[int64]models.Plan),
		reports:  make(map[int64]models.Report),
		grants:   make(map[grantKey]models.UserReport),
		requests: make(map[requestKey]models.ReportRequest),
	}}
}

type txKey struct{}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.undo = nil
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, s))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		for i := len(s.undo) - 1; i >= 0; i-- {
			s.undo[i]()
		}
	}
	s.undo = nil
	return err
}

// journal records how to revert a write made under the open transaction.
// Writes outside a transaction are not journaled. Caller holds mu.
func (s *Store) journal(ctx context.Context, revert func()) {
	if ctx.Value(txKey{}) == s {
		s.undo = append(s.undo, revert)
	}
}

// restore puts key back to its value before the write.
func restore[K comparable, V any](m map[K]V, key K, prev V, existed bool) func() {
	return func() {
		if existed {
			m[key] = prev
			return
		}
		delete(m, key)
	}
}

// Ping satisfies the health check.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) Users() *UserRepository       { return &UserRepository{s: s} }
func (s *Store) Credits() *CreditRepository   { return &CreditRepository{s: s} }
func (s *Store) Orders() *OrderRepository     { return &OrderRepository{s: s} }
func (s *Store) Reports() *ReportRepository   { return &ReportRepository{s: s} }
func (s *Store) Requests() *RequestRepository { return &RequestRepository{s: s} }
func (s *Store) Plans() *PlanRepository       { return &PlanRepository{s: s} }
