// Package transaction holds the immutable audit records of consumption.
package transaction

import (
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/usage"
)

// BatchDebit is the amount taken from one bonus batch.
type BatchDebit struct {
	BatchID id.BatchID `json:"batch_id"`
	Amount  int64      `json:"amount"`
}

// EntitlementDebit is the amount taken from one program entitlement.
type EntitlementDebit struct {
	EntitlementID id.EntitlementID `json:"entitlement_id"`
	Amount        int64            `json:"amount"`
}

// Transaction records one successful consume. It is written exactly once and
// never updated. FromPlan+FromProgram+FromBonus always equals AmountRequested.
type Transaction struct {
	ID                  id.TransactionID   `json:"id"`
	Account             account.Ref        `json:"account"`
	AmountRequested     int64              `json:"amount_requested"`
	FromPlan            int64              `json:"amount_from_plan"`
	PlanPool            usage.Pool         `json:"plan_pool,omitempty"`
	FromProgram         int64              `json:"amount_from_program"`
	FromBonus           int64              `json:"amount_from_bonus"`
	BatchesDebited      []BatchDebit       `json:"batches_debited,omitempty"`
	EntitlementsDebited []EntitlementDebit `json:"entitlements_debited,omitempty"`
	BalanceAfter        int64              `json:"balance_after"`
	FeatureKey          string             `json:"feature_key,omitempty"`
	ActionType          string             `json:"action_type"`
	ActionReferenceID   string             `json:"action_reference_id,omitempty"`
	Description         string             `json:"description,omitempty"`
	IdempotencyKey      string             `json:"idempotency_key,omitempty"`
	OccurredAt          time.Time          `json:"occurred_at"`
}

// Total returns the sum of the per-source amounts.
func (t *Transaction) Total() int64 {
	return t.FromPlan + t.FromProgram + t.FromBonus
}
