package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/consumption"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

// ConsumeRequest describes one debit.
type ConsumeRequest struct {
	Account           account.Ref
	Amount            int64
	FeatureKey        string
	ActionType        string
	ActionReferenceID string
	Description       string

	// IdempotencyKey, when set, makes the call safe to repeat: a second
	// consume with the same key for the same account returns the original
	// transaction without debiting again.
	IdempotencyKey string
}

func (r ConsumeRequest) validate() error {
	if r.Amount <= 0 {
		return fmt.Errorf("%w: consume amount must be positive, got %d", ErrInvalidAmount, r.Amount)
	}
	if err := r.Account.Validate(); err != nil {
		return ValidationError{Field: "account", Message: err.Error()}
	}
	if r.ActionType == "" {
		return ValidationError{Field: "action_type", Message: "is required"}
	}
	return nil
}

// replays reports whether t was produced by an identical request.
func (r ConsumeRequest) replays(t *transaction.Transaction) bool {
	return t.AmountRequested == r.Amount &&
		t.FeatureKey == r.FeatureKey &&
		t.ActionType == r.ActionType &&
		t.ActionReferenceID == r.ActionReferenceID
}

// Consume debits req.Amount from the account's plan allowance, program
// entitlements and bonus batches, in that order, and returns the
// transaction recording the split.
//
// The read-check-write sequence runs as one account-scoped atomic unit.
// When the account's balance is short the call fails with an
// *InsufficientCreditsError and nothing is written. Write conflicts with
// concurrent consumes are retried a bounded number of times before
// ErrTransientConflict is returned.
func (e *Engine) Consume(ctx context.Context, req ConsumeRequest) (*transaction.Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		txn, replayed, err := e.consumeOnce(ctx, req)
		if err == nil {
			if replayed {
				e.logger.Debug("consume replayed",
					"account", req.Account.Key(),
					"idempotency_key", req.IdempotencyKey,
					"transaction_id", txn.ID.String(),
				)
				return txn, nil
			}
			elapsed := time.Since(start)
			e.logger.Debug("credits consumed",
				"account", req.Account.Key(),
				"transaction_id", txn.ID.String(),
				"amount", txn.AmountRequested,
				"from_plan", txn.FromPlan,
				"from_program", txn.FromProgram,
				"from_bonus", txn.FromBonus,
				"attempt", attempt,
			)
			e.plugins.EmitCreditsConsumed(ctx, txn, elapsed)
			return txn, nil
		}

		var ice *InsufficientCreditsError
		if errors.As(err, &ice) {
			e.logger.Info("insufficient credits",
				"account", req.Account.Key(),
				"feature", req.FeatureKey,
				"available", ice.Available,
				"required", ice.Required,
			)
			e.plugins.EmitInsufficientCredits(ctx, req.Account, req.FeatureKey, ice.Available, ice.Required)
			return nil, err
		}

		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}

		e.plugins.EmitConsumeConflict(ctx, req.Account, attempt, err)
		if attempt >= e.maxAttempts {
			e.logger.Warn("consume retry budget exhausted",
				"account", req.Account.Key(),
				"attempts", attempt,
				"error", err,
			)
			return nil, fmt.Errorf("%w: %d attempts: %w", ErrTransientConflict, attempt, err)
		}
		e.logger.Warn("consume conflict, retrying",
			"account", req.Account.Key(),
			"attempt", attempt,
			"error", err,
		)

		if err := sleepCtx(ctx, e.retryBackoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) consumeOnce(ctx context.Context, req ConsumeRequest) (txn *transaction.Transaction, replayed bool, err error) {
	if e.locker != nil {
		release, lerr := e.locker.Acquire(ctx, lockKey(req.Account.Key()), e.lockTTL)
		if lerr != nil {
			if errors.Is(lerr, ErrLockNotAcquired) {
				return nil, false, fmt.Errorf("%w: %w", store.ErrConflict, lerr)
			}
			return nil, false, lerr
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				e.logger.Warn("release account lock", "account", req.Account.Key(), "error", rerr)
			}
		}()
	}

	now := e.clock.Now()
	err = e.store.RunInAccountTx(ctx, req.Account, func(ctx context.Context, tx store.Tx) error {
		txn, replayed = nil, false

		if _, err := tx.GetAccount(ctx, req.Account); err != nil {
			return err
		}

		if req.IdempotencyKey != "" {
			prev, err := tx.GetTransactionByIdempotencyKey(ctx, req.Account, req.IdempotencyKey)
			switch {
			case err == nil:
				if !req.replays(prev) {
					return ErrIdempotencyConflict
				}
				txn, replayed = prev, true
				return nil
			case !IsNotFound(err):
				return err
			}
		}

		in, err := e.loadInputs(ctx, tx, req.Account, now)
		if err != nil {
			return err
		}

		alloc, ok := consumption.Allocate(consumption.SourcesFor(in, req.FeatureKey), req.Amount)
		if !ok {
			return &InsufficientCreditsError{
				FeatureKey: req.FeatureKey,
				Available:  alloc.Available,
				Required:   req.Amount,
			}
		}

		t := &transaction.Transaction{
			ID:                  id.NewTransactionID(),
			Account:             req.Account,
			AmountRequested:     req.Amount,
			FromPlan:            alloc.FromPlan,
			FromProgram:         alloc.FromProgram,
			FromBonus:           alloc.FromBonus,
			BatchesDebited:      alloc.Batches,
			EntitlementsDebited: alloc.Entitlements,
			BalanceAfter:        alloc.Available - req.Amount,
			FeatureKey:          req.FeatureKey,
			ActionType:          req.ActionType,
			ActionReferenceID:   req.ActionReferenceID,
			Description:         req.Description,
			IdempotencyKey:      req.IdempotencyKey,
			OccurredAt:          now,
		}
		if t.FromPlan > 0 {
			t.PlanPool = alloc.PlanPool
		}
		if t.Total() != req.Amount {
			return &InsufficientCreditsError{FeatureKey: req.FeatureKey, Available: alloc.Available, Required: req.Amount}
		}

		if t.FromPlan > 0 {
			if err := tx.AppendUsage(ctx, &usage.Record{
				ID:                id.NewUsageRecordID(),
				Account:           req.Account,
				Amount:            t.FromPlan,
				FeatureKey:        req.FeatureKey,
				Pool:              t.PlanPool,
				ActionType:        req.ActionType,
				ActionReferenceID: req.ActionReferenceID,
				TransactionID:     t.ID,
				OccurredAt:        now,
			}); err != nil {
				return err
			}
		}
		for _, d := range t.EntitlementsDebited {
			if err := tx.DebitEntitlement(ctx, d.EntitlementID, d.Amount, now); err != nil {
				return err
			}
		}
		for _, d := range t.BatchesDebited {
			if err := tx.DebitBatch(ctx, d.BatchID, d.Amount); err != nil {
				return err
			}
		}
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return err
		}

		txn = t
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return txn, replayed, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
