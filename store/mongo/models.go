package mongo

import (
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/types"
	"github.com/xraph/credits/usage"
)

// ==================== Account models ====================

type accountModel struct {
	AccountKey  string            `bson:"_id"`
	Kind        string            `bson:"kind"`
	ExternalID  string            `bson:"external_id"`
	DisplayName string            `bson:"display_name,omitempty"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		AccountKey:  a.Ref.Key(),
		Kind:        string(a.Ref.Kind),
		ExternalID:  a.Ref.ID,
		DisplayName: a.DisplayName,
		Metadata:    a.Metadata,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		Ref:         account.Ref{Kind: account.Kind(m.Kind), ID: m.ExternalID},
		DisplayName: m.DisplayName,
		Metadata:    m.Metadata,
	}
}

// ==================== Plan models ====================

type planModel struct {
	ID             string            `bson:"_id"`
	Name           string            `bson:"name"`
	Slug           string            `bson:"slug,omitempty"`
	Description    string            `bson:"description,omitempty"`
	Status         string            `bson:"status"`
	MonthlyCredits int64             `bson:"monthly_credits"`
	Allocations    []allocationModel `bson:"allocations,omitempty"`
	Metadata       map[string]string `bson:"metadata,omitempty"`
	CreatedAt      time.Time         `bson:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at"`
}

type allocationModel struct {
	FeatureKey     string `bson:"feature_key"`
	MonthlyCredits int64  `bson:"monthly_credits"`
}

func toPlanModel(p *plan.Plan) *planModel {
	allocs := make([]allocationModel, len(p.Allocations))
	for i, a := range p.Allocations {
		allocs[i] = allocationModel{FeatureKey: a.FeatureKey, MonthlyCredits: a.MonthlyCredits}
	}
	return &planModel{
		ID:             p.ID.String(),
		Name:           p.Name,
		Slug:           p.Slug,
		Description:    p.Description,
		Status:         string(p.Status),
		MonthlyCredits: p.MonthlyCredits,
		Allocations:    allocs,
		Metadata:       p.Metadata,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}
	var allocs []plan.Allocation
	if len(m.Allocations) > 0 {
		allocs = make([]plan.Allocation, len(m.Allocations))
		for i, a := range m.Allocations {
			allocs[i] = plan.Allocation{FeatureKey: a.FeatureKey, MonthlyCredits: a.MonthlyCredits}
		}
	}
	return &plan.Plan{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:             planID,
		Name:           m.Name,
		Slug:           m.Slug,
		Description:    m.Description,
		Status:         plan.Status(m.Status),
		MonthlyCredits: m.MonthlyCredits,
		Allocations:    allocs,
		Metadata:       m.Metadata,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	ID         string            `bson:"_id"`
	AccountKey string            `bson:"account_key"`
	PlanID     string            `bson:"plan_id"`
	Status     string            `bson:"status"`
	AnchorAt   time.Time         `bson:"anchor_at"`
	CancelAt   *time.Time        `bson:"cancel_at,omitempty"`
	CanceledAt *time.Time        `bson:"canceled_at,omitempty"`
	Metadata   map[string]string `bson:"metadata,omitempty"`
	CreatedAt  time.Time         `bson:"created_at"`
	UpdatedAt  time.Time         `bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:         s.ID.String(),
		AccountKey: s.Account.Key(),
		PlanID:     s.PlanID.String(),
		Status:     string(s.Status),
		AnchorAt:   s.AnchorAt.UTC(),
		CancelAt:   utcPtr(s.CancelAt),
		CanceledAt: utcPtr(s.CanceledAt),
		Metadata:   s.Metadata,
		CreatedAt:  s.CreatedAt.UTC(),
		UpdatedAt:  s.UpdatedAt.UTC(),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return nil, err
	}
	ref, err := account.ParseKey(m.AccountKey)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity:     types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:         subID,
		Account:    ref,
		PlanID:     planID,
		Status:     subscription.Status(m.Status),
		AnchorAt:   m.AnchorAt.UTC(),
		CancelAt:   utcPtr(m.CancelAt),
		CanceledAt: utcPtr(m.CanceledAt),
		Metadata:   m.Metadata,
	}, nil
}

// ==================== Usage models ====================

type usageModel struct {
	ID                string    `bson:"_id"`
	AccountKey        string    `bson:"account_key"`
	Amount            int64     `bson:"amount"`
	FeatureKey        string    `bson:"feature_key"`
	Pool              string    `bson:"pool"`
	ActionType        string    `bson:"action_type"`
	ActionReferenceID string    `bson:"action_reference_id,omitempty"`
	TransactionID     string    `bson:"transaction_id"`
	OccurredAt        time.Time `bson:"occurred_at"`
}

func toUsageModel(r *usage.Record) *usageModel {
	return &usageModel{
		ID:                r.ID.String(),
		AccountKey:        r.Account.Key(),
		Amount:            r.Amount,
		FeatureKey:        r.FeatureKey,
		Pool:              string(r.Pool),
		ActionType:        r.ActionType,
		ActionReferenceID: r.ActionReferenceID,
		TransactionID:     r.TransactionID.String(),
		OccurredAt:        r.OccurredAt.UTC(),
	}
}

func fromUsageModel(m *usageModel) (*usage.Record, error) {
	recID, err := id.ParseUsageRecordID(m.ID)
	if err != nil {
		return nil, err
	}
	txnID, err := id.ParseTransactionID(m.TransactionID)
	if err != nil {
		return nil, err
	}
	ref, err := account.ParseKey(m.AccountKey)
	if err != nil {
		return nil, err
	}
	return &usage.Record{
		ID:                recID,
		Account:           ref,
		Amount:            m.Amount,
		FeatureKey:        m.FeatureKey,
		Pool:              usage.Pool(m.Pool),
		ActionType:        m.ActionType,
		ActionReferenceID: m.ActionReferenceID,
		TransactionID:     txnID,
		OccurredAt:        m.OccurredAt.UTC(),
	}, nil
}

// ==================== Entitlement models ====================

type entitlementModel struct {
	ID           string     `bson:"_id"`
	AccountKey   string     `bson:"account_key"`
	EnrollmentID string     `bson:"enrollment_id"`
	FeatureKey   string     `bson:"feature_key"`
	Total        int64      `bson:"total"`
	Used         int64      `bson:"used"`
	Active       bool       `bson:"active"`
	EndedAt      *time.Time `bson:"ended_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func toEntitlementModel(e *entitlement.Entitlement) *entitlementModel {
	return &entitlementModel{
		ID:           e.ID.String(),
		AccountKey:   e.Account.Key(),
		EnrollmentID: e.EnrollmentID,
		FeatureKey:   e.FeatureKey,
		Total:        e.Total,
		Used:         e.Used,
		Active:       e.Active,
		EndedAt:      utcPtr(e.EndedAt),
		CreatedAt:    e.CreatedAt.UTC(),
		UpdatedAt:    e.UpdatedAt.UTC(),
	}
}

func fromEntitlementModel(m *entitlementModel) (*entitlement.Entitlement, error) {
	entID, err := id.ParseEntitlementID(m.ID)
	if err != nil {
		return nil, err
	}
	ref, err := account.ParseKey(m.AccountKey)
	if err != nil {
		return nil, err
	}
	return &entitlement.Entitlement{
		Entity:       types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:           entID,
		Account:      ref,
		EnrollmentID: m.EnrollmentID,
		FeatureKey:   m.FeatureKey,
		Total:        m.Total,
		Used:         m.Used,
		Active:       m.Active,
		EndedAt:      utcPtr(m.EndedAt),
	}, nil
}

// ==================== Batch models ====================

type batchModel struct {
	ID              string    `bson:"_id"`
	AccountKey      string    `bson:"account_key"`
	AmountOriginal  int64     `bson:"amount_original"`
	AmountRemaining int64     `bson:"amount_remaining"`
	FeatureKey      string    `bson:"feature_key,omitempty"`
	ExpiresAt       time.Time `bson:"expires_at"`
	SourceType      string    `bson:"source_type"`
	Description     string    `bson:"description,omitempty"`
	GrantedAt       time.Time `bson:"granted_at"`
}

func toBatchModel(b *batch.Batch) *batchModel {
	return &batchModel{
		ID:              b.ID.String(),
		AccountKey:      b.Account.Key(),
		AmountOriginal:  b.AmountOriginal,
		AmountRemaining: b.AmountRemaining,
		FeatureKey:      b.FeatureKey,
		ExpiresAt:       b.ExpiresAt.UTC(),
		SourceType:      string(b.SourceType),
		Description:     b.Description,
		GrantedAt:       b.GrantedAt.UTC(),
	}
}

func fromBatchModel(m *batchModel) (*batch.Batch, error) {
	batchID, err := id.ParseBatchID(m.ID)
	if err != nil {
		return nil, err
	}
	ref, err := account.ParseKey(m.AccountKey)
	if err != nil {
		return nil, err
	}
	return &batch.Batch{
		ID:              batchID,
		Account:         ref,
		AmountOriginal:  m.AmountOriginal,
		AmountRemaining: m.AmountRemaining,
		FeatureKey:      m.FeatureKey,
		ExpiresAt:       m.ExpiresAt.UTC(),
		SourceType:      batch.SourceType(m.SourceType),
		Description:     m.Description,
		GrantedAt:       m.GrantedAt.UTC(),
	}, nil
}

// ==================== Transaction models ====================

type debitModel struct {
	SourceID string `bson:"source_id"`
	Amount   int64  `bson:"amount"`
}

type transactionModel struct {
	ID                  string       `bson:"_id"`
	AccountKey          string       `bson:"account_key"`
	AmountRequested     int64        `bson:"amount_requested"`
	FromPlan            int64        `bson:"amount_from_plan"`
	PlanPool            string       `bson:"plan_pool,omitempty"`
	FromProgram         int64        `bson:"amount_from_program"`
	FromBonus           int64        `bson:"amount_from_bonus"`
	BatchesDebited      []debitModel `bson:"batches_debited,omitempty"`
	EntitlementsDebited []debitModel `bson:"entitlements_debited,omitempty"`
	BalanceAfter        int64        `bson:"balance_after"`
	FeatureKey          string       `bson:"feature_key,omitempty"`
	ActionType          string       `bson:"action_type"`
	ActionReferenceID   string       `bson:"action_reference_id,omitempty"`
	Description         string       `bson:"description,omitempty"`
	IdempotencyKey      string       `bson:"idempotency_key,omitempty"`
	OccurredAt          time.Time    `bson:"occurred_at"`
}

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	m := &transactionModel{
		ID:                t.ID.String(),
		AccountKey:        t.Account.Key(),
		AmountRequested:   t.AmountRequested,
		FromPlan:          t.FromPlan,
		PlanPool:          string(t.PlanPool),
		FromProgram:       t.FromProgram,
		FromBonus:         t.FromBonus,
		BalanceAfter:      t.BalanceAfter,
		FeatureKey:        t.FeatureKey,
		ActionType:        t.ActionType,
		ActionReferenceID: t.ActionReferenceID,
		Description:       t.Description,
		IdempotencyKey:    t.IdempotencyKey,
		OccurredAt:        t.OccurredAt.UTC(),
	}
	for _, d := range t.BatchesDebited {
		m.BatchesDebited = append(m.BatchesDebited, debitModel{SourceID: d.BatchID.String(), Amount: d.Amount})
	}
	for _, d := range t.EntitlementsDebited {
		m.EntitlementsDebited = append(m.EntitlementsDebited, debitModel{SourceID: d.EntitlementID.String(), Amount: d.Amount})
	}
	return m
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	ref, err := account.ParseKey(m.AccountKey)
	if err != nil {
		return nil, err
	}
	t := &transaction.Transaction{
		ID:                txnID,
		Account:           ref,
		AmountRequested:   m.AmountRequested,
		FromPlan:          m.FromPlan,
		PlanPool:          usage.Pool(m.PlanPool),
		FromProgram:       m.FromProgram,
		FromBonus:         m.FromBonus,
		BalanceAfter:      m.BalanceAfter,
		FeatureKey:        m.FeatureKey,
		ActionType:        m.ActionType,
		ActionReferenceID: m.ActionReferenceID,
		Description:       m.Description,
		IdempotencyKey:    m.IdempotencyKey,
		OccurredAt:        m.OccurredAt.UTC(),
	}
	for _, d := range m.BatchesDebited {
		batchID, err := id.ParseBatchID(d.SourceID)
		if err != nil {
			return nil, err
		}
		t.BatchesDebited = append(t.BatchesDebited, transaction.BatchDebit{BatchID: batchID, Amount: d.Amount})
	}
	for _, d := range m.EntitlementsDebited {
		entID, err := id.ParseEntitlementID(d.SourceID)
		if err != nil {
			return nil, err
		}
		t.EntitlementsDebited = append(t.EntitlementsDebited, transaction.EntitlementDebit{EntitlementID: entID, Amount: d.Amount})
	}
	return t, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
