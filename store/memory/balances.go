package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

// ──────────────────────────────────────────────────
// Usage records
// ──────────────────────────────────────────────────

func (s *Store) SumUsage(_ context.Context, ref account.Ref, from, to time.Time) (usage.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sumUsage(ref, from, to), nil
}

func (s *Store) sumUsage(ref account.Ref, from, to time.Time) usage.Totals {
	var totals usage.Totals
	for _, r := range s.usage {
		if r.Account == ref && r.In(from, to) {
			totals.Add(r)
		}
	}
	return totals
}

func (s *Store) ListUsage(_ context.Context, ref account.Ref, opts usage.ListOpts) ([]*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*usage.Record, 0)
	for _, r := range s.usage {
		if r.Account != ref {
			continue
		}
		if !opts.From.IsZero() && r.OccurredAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && !r.OccurredAt.Before(opts.To) {
			continue
		}
		c := *r
		result = append(result, &c)
	}
	slices.SortStableFunc(result, func(a, b *usage.Record) int {
		return a.OccurredAt.Compare(b.OccurredAt)
	})
	return page(result, 0, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Program entitlements
// ──────────────────────────────────────────────────

func (s *Store) CreateEntitlement(_ context.Context, e *entitlement.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entitlements[e.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	s.entitlements[e.ID.String()] = cloneEntitlement(e)
	return nil
}

func (s *Store) GetEntitlement(_ context.Context, entID id.EntitlementID) (*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entitlements[entID.String()]; ok {
		return cloneEntitlement(e), nil
	}
	return nil, credits.ErrEntitlementNotFound
}

func (s *Store) ListEntitlements(_ context.Context, ref account.Ref, opts entitlement.ListOpts) ([]*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEntitlements(ref, opts), nil
}

func (s *Store) listEntitlements(ref account.Ref, opts entitlement.ListOpts) []*entitlement.Entitlement {
	result := make([]*entitlement.Entitlement, 0)
	for _, e := range s.entitlements {
		if e.Account != ref {
			continue
		}
		if opts.ActiveOnly && !e.Active {
			continue
		}
		if opts.FeatureKey != "" && e.FeatureKey != opts.FeatureKey {
			continue
		}
		result = append(result, cloneEntitlement(e))
	}
	slices.SortFunc(result, func(a, b *entitlement.Entitlement) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return result
}

func (s *Store) EndEnrollment(_ context.Context, ref account.Ref, enrollmentID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at = at.UTC()
	n := 0
	for _, e := range s.entitlements {
		if e.Account != ref || e.EnrollmentID != enrollmentID || !e.Active {
			continue
		}
		ended := at
		e.Active = false
		e.EndedAt = &ended
		e.Touch(at)
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Bonus batches
// ──────────────────────────────────────────────────

func (s *Store) CreateBatch(_ context.Context, b *batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[b.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	c := *b
	s.batches[b.ID.String()] = &c
	return nil
}

func (s *Store) GetBatch(_ context.Context, batchID id.BatchID) (*batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.batches[batchID.String()]; ok {
		c := *b
		return &c, nil
	}
	return nil, credits.ErrBatchNotFound
}

func (s *Store) ListBatches(_ context.Context, ref account.Ref, opts batch.ListOpts) ([]*batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBatches(ref, opts), nil
}

func (s *Store) listBatches(ref account.Ref, opts batch.ListOpts) []*batch.Batch {
	result := make([]*batch.Batch, 0)
	for _, b := range s.batches {
		if b.Account != ref {
			continue
		}
		if !opts.LiveAt.IsZero() && !b.Live(opts.LiveAt) {
			continue
		}
		c := *b
		result = append(result, &c)
	}
	batch.Sort(result)
	return result
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

func (s *Store) GetTransaction(_ context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.transactions[txnID.String()]; ok {
		return cloneTransaction(t), nil
	}
	return nil, credits.ErrTransactionNotFound
}

func (s *Store) ListTransactions(_ context.Context, ref account.Ref, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*transaction.Transaction, 0)
	for _, t := range s.transactions {
		if t.Account == ref {
			result = append(result, cloneTransaction(t))
		}
	}
	slices.SortFunc(result, func(a, b *transaction.Transaction) int {
		if c := b.OccurredAt.Compare(a.OccurredAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID.String(), a.ID.String())
	})
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetTransactionByIdempotencyKey(_ context.Context, ref account.Ref, key string) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTransactionByIdempotencyKey(ref, key)
}

func (s *Store) getTransactionByIdempotencyKey(ref account.Ref, key string) (*transaction.Transaction, error) {
	txnID, ok := s.idempotency[idempotencyKey(ref, key)]
	if !ok {
		return nil, credits.ErrTransactionNotFound
	}
	return cloneTransaction(s.transactions[txnID]), nil
}

func idempotencyKey(ref account.Ref, key string) string {
	return ref.Key() + "\x00" + key
}
