// Package memory is an in-process store for tests and single-node use.
//
// Every value is copied on the way in and on the way out, so callers never
// share state with the store. Account-scoped units are serialized by a
// per-account mutex and applied under the global write lock after their
// guards are re-checked.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	accounts      map[string]*account.Account
	plans         map[string]*plan.Plan
	subscriptions map[string]*subscription.Subscription
	usage         []*usage.Record
	entitlements  map[string]*entitlement.Entitlement
	batches       map[string]*batch.Batch
	transactions  map[string]*transaction.Transaction
	idempotency   map[string]string // idempotencyKey(ref, key) -> transaction id

	// per-account unit locks
	accountLocks sync.Map
}

func New() *Store {
	return &Store{
		accounts:      make(map[string]*account.Account),
		plans:         make(map[string]*plan.Plan),
		subscriptions: make(map[string]*subscription.Subscription),
		entitlements:  make(map[string]*entitlement.Entitlement),
		batches:       make(map[string]*batch.Batch),
		transactions:  make(map[string]*transaction.Transaction),
		idempotency:   make(map[string]string),
	}
}

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := a.Ref.Key()
	if _, exists := s.accounts[key]; exists {
		return credits.ErrAlreadyExists
	}
	s.accounts[key] = cloneAccount(a)
	return nil
}

func (s *Store) GetAccount(_ context.Context, ref account.Ref) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccount(ref)
}

func (s *Store) getAccount(ref account.Ref) (*account.Account, error) {
	if a, ok := s.accounts[ref.Key()]; ok {
		return cloneAccount(a), nil
	}
	return nil, credits.ErrAccountNotFound
}

// ──────────────────────────────────────────────────
// Plans
// ──────────────────────────────────────────────────

func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	for _, existing := range s.plans {
		if p.Slug != "" && existing.Slug == p.Slug {
			return credits.ErrAlreadyExists
		}
	}
	s.plans[p.ID.String()] = clonePlan(p)
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPlan(planID)
}

func (s *Store) getPlan(planID id.PlanID) (*plan.Plan, error) {
	if p, ok := s.plans[planID.String()]; ok {
		return clonePlan(p), nil
	}
	return nil, credits.ErrPlanNotFound
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if opts.Status == "" || p.Status == opts.Status {
			result = append(result, clonePlan(p))
		}
	}
	slices.SortFunc(result, func(a, b *plan.Plan) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ArchivePlan(_ context.Context, planID id.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[planID.String()]
	if !ok {
		return credits.ErrPlanNotFound
	}
	p.Status = plan.StatusArchived
	return nil
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, credits.ErrSubscriptionNotFound
}

func (s *Store) GetActiveSubscription(_ context.Context, ref account.Ref, at time.Time) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getActiveSubscription(ref, at)
}

// getActiveSubscription picks the most recently anchored subscription
// active at at.
func (s *Store) getActiveSubscription(ref account.Ref, at time.Time) (*subscription.Subscription, error) {
	var found *subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.Account != ref || !sub.ActiveAt(at) {
			continue
		}
		if found == nil || sub.AnchorAt.After(found.AnchorAt) {
			found = sub
		}
	}
	if found == nil {
		return nil, credits.ErrNoActiveSubscription
	}
	return cloneSubscription(found), nil
}

func (s *Store) HasSubscriptionFrom(_ context.Context, ref account.Ref, at time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subscriptions {
		if sub.Account == ref && sub.ActiveFrom(at) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CancelSubscription(_ context.Context, subID id.SubscriptionID, cancelAt time.Time, immediate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return credits.ErrSubscriptionNotFound
	}
	cancelAt = cancelAt.UTC()
	sub.CancelAt = &cancelAt
	if immediate {
		sub.Status = subscription.StatusCanceled
		sub.CanceledAt = &cancelAt
		sub.Touch(cancelAt)
	}
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}
