package sqlstore

import (
	"time"

	"gorm.io/datatypes"

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

// ──────────────────────────────────────────────────
// Account model
// ──────────────────────────────────────────────────

type accountModel struct {
	AccountKey  string                                `gorm:"primaryKey;size:255"`
	Kind        string                                `gorm:"size:32;not null"`
	ExternalID  string                                `gorm:"size:255;not null"`
	DisplayName string                                `gorm:"size:255"`
	Metadata    datatypes.JSONType[map[string]string] `gorm:"type:json"`
	CreatedAt   time.Time                             `gorm:"not null"`
	UpdatedAt   time.Time                             `gorm:"not null"`
}

func (accountModel) TableName() string { return "credit_accounts" }

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		AccountKey:  a.Ref.Key(),
		Kind:        string(a.Ref.Kind),
		ExternalID:  a.Ref.ID,
		DisplayName: a.DisplayName,
		Metadata:    datatypes.NewJSONType(a.Metadata),
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		Ref:         account.Ref{Kind: account.Kind(m.Kind), ID: m.ExternalID},
		DisplayName: m.DisplayName,
		Metadata:    m.Metadata.Data(),
	}
}

// ──────────────────────────────────────────────────
// Plan model
// ──────────────────────────────────────────────────

type planModel struct {
	ID             string                                `gorm:"primaryKey;size:64"`
	Name           string                                `gorm:"size:255;not null"`
	Slug           *string                               `gorm:"size:255;uniqueIndex"`
	Description    string                                `gorm:"type:text"`
	Status         string                                `gorm:"size:32;not null;index"`
	MonthlyCredits int64                                 `gorm:"not null"`
	Allocations    datatypes.JSONSlice[plan.Allocation]  `gorm:"type:json"`
	Metadata       datatypes.JSONType[map[string]string] `gorm:"type:json"`
	CreatedAt      time.Time                             `gorm:"not null"`
	UpdatedAt      time.Time                             `gorm:"not null"`
}

func (planModel) TableName() string { return "credit_plans" }

func toPlanModel(p *plan.Plan) *planModel {
	var slug *string
	if p.Slug != "" {
		s := p.Slug
		slug = &s
	}
	return &planModel{
		ID:             p.ID.String(),
		Name:           p.Name,
		Slug:           slug,
		Description:    p.Description,
		Status:         string(p.Status),
		MonthlyCredits: p.MonthlyCredits,
		Allocations:    datatypes.JSONSlice[plan.Allocation](p.Allocations),
		Metadata:       datatypes.NewJSONType(p.Metadata),
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}
	p := &plan.Plan{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:             planID,
		Name:           m.Name,
		Description:    m.Description,
		Status:         plan.Status(m.Status),
		MonthlyCredits: m.MonthlyCredits,
		Metadata:       m.Metadata.Data(),
	}
	if m.Slug != nil {
		p.Slug = *m.Slug
	}
	if len(m.Allocations) > 0 {
		p.Allocations = []plan.Allocation(m.Allocations)
	}
	return p, nil
}

// ──────────────────────────────────────────────────
// Subscription model
// ──────────────────────────────────────────────────

type subscriptionModel struct {
	ID         string                                `gorm:"primaryKey;size:64"`
	AccountKey string                                `gorm:"size:255;not null;index:idx_credit_subscriptions_account"`
	PlanID     string                                `gorm:"size:64;not null"`
	Status     string                                `gorm:"size:32;not null"`
	AnchorAt   time.Time                             `gorm:"not null;index:idx_credit_subscriptions_account"`
	CancelAt   *time.Time                            ``
	CanceledAt *time.Time                            ``
	Metadata   datatypes.JSONType[map[string]string] `gorm:"type:json"`
	CreatedAt  time.Time                             `gorm:"not null"`
	UpdatedAt  time.Time                             `gorm:"not null"`
}

func (subscriptionModel) TableName() string { return "credit_subscriptions" }

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:         s.ID.String(),
		AccountKey: s.Account.Key(),
		PlanID:     s.PlanID.String(),
		Status:     string(s.Status),
		AnchorAt:   s.AnchorAt.UTC(),
		CancelAt:   utcPtr(s.CancelAt),
		CanceledAt: utcPtr(s.CanceledAt),
		Metadata:   datatypes.NewJSONType(s.Metadata),
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
		Metadata:   m.Metadata.Data(),
	}, nil
}

// ──────────────────────────────────────────────────
// Usage model
// ──────────────────────────────────────────────────

type usageModel struct {
	ID                string    `gorm:"primaryKey;size:64"`
	AccountKey        string    `gorm:"size:255;not null;index:idx_credit_usage_account_time"`
	Amount            int64     `gorm:"not null"`
	FeatureKey        string    `gorm:"size:255"`
	Pool              string    `gorm:"size:32;not null"`
	ActionType        string    `gorm:"size:255;not null"`
	ActionReferenceID string    `gorm:"size:255"`
	TransactionID     string    `gorm:"size:64;not null;index"`
	OccurredAt        time.Time `gorm:"not null;index:idx_credit_usage_account_time"`
}

func (usageModel) TableName() string { return "credit_usage_records" }

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

// ──────────────────────────────────────────────────
// Entitlement model
// ──────────────────────────────────────────────────

type entitlementModel struct {
	ID           string     `gorm:"primaryKey;size:64"`
	AccountKey   string     `gorm:"size:255;not null;index:idx_credit_entitlements_enrollment"`
	EnrollmentID string     `gorm:"size:255;not null;index:idx_credit_entitlements_enrollment"`
	FeatureKey   string     `gorm:"size:255;not null"`
	Total        int64      `gorm:"not null"`
	Used         int64      `gorm:"not null;default:0"`
	Active       bool       `gorm:"not null"`
	EndedAt      *time.Time ``
	CreatedAt    time.Time  `gorm:"not null"`
	UpdatedAt    time.Time  `gorm:"not null"`
}

func (entitlementModel) TableName() string { return "credit_entitlements" }

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

// ──────────────────────────────────────────────────
// Batch model
// ──────────────────────────────────────────────────

type batchModel struct {
	ID              string    `gorm:"primaryKey;size:64"`
	AccountKey      string    `gorm:"size:255;not null;index:idx_credit_batches_account_expiry"`
	AmountOriginal  int64     `gorm:"not null"`
	AmountRemaining int64     `gorm:"not null"`
	FeatureKey      string    `gorm:"size:255"`
	ExpiresAt       time.Time `gorm:"not null;index:idx_credit_batches_account_expiry"`
	SourceType      string    `gorm:"size:32;not null"`
	Description     string    `gorm:"type:text"`
	GrantedAt       time.Time `gorm:"not null"`
}

func (batchModel) TableName() string { return "credit_batches" }

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

// ──────────────────────────────────────────────────
// Transaction model
// ──────────────────────────────────────────────────

type transactionModel struct {
	ID                  string                                            `gorm:"primaryKey;size:64"`
	AccountKey          string                                            `gorm:"size:255;not null;index:idx_credit_transactions_account_time;uniqueIndex:ux_credit_transactions_idempotency"`
	AmountRequested     int64                                             `gorm:"not null"`
	FromPlan            int64                                             `gorm:"not null"`
	PlanPool            string                                            `gorm:"size:32"`
	FromProgram         int64                                             `gorm:"not null"`
	FromBonus           int64                                             `gorm:"not null"`
	BatchesDebited      datatypes.JSONSlice[transaction.BatchDebit]       `gorm:"type:json"`
	EntitlementsDebited datatypes.JSONSlice[transaction.EntitlementDebit] `gorm:"type:json"`
	BalanceAfter        int64                                             `gorm:"not null"`
	FeatureKey          string                                            `gorm:"size:255"`
	ActionType          string                                            `gorm:"size:255;not null"`
	ActionReferenceID   string                                            `gorm:"size:255"`
	Description         string                                            `gorm:"type:text"`
	IdempotencyKey      *string                                           `gorm:"size:255;uniqueIndex:ux_credit_transactions_idempotency"`
	OccurredAt          time.Time                                         `gorm:"not null;index:idx_credit_transactions_account_time"`
}

func (transactionModel) TableName() string { return "credit_transactions" }

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	var key *string
	if t.IdempotencyKey != "" {
		k := t.IdempotencyKey
		key = &k
	}
	return &transactionModel{
		ID:                  t.ID.String(),
		AccountKey:          t.Account.Key(),
		AmountRequested:     t.AmountRequested,
		FromPlan:            t.FromPlan,
		PlanPool:            string(t.PlanPool),
		FromProgram:         t.FromProgram,
		FromBonus:           t.FromBonus,
		BatchesDebited:      datatypes.JSONSlice[transaction.BatchDebit](t.BatchesDebited),
		EntitlementsDebited: datatypes.JSONSlice[transaction.EntitlementDebit](t.EntitlementsDebited),
		BalanceAfter:        t.BalanceAfter,
		FeatureKey:          t.FeatureKey,
		ActionType:          t.ActionType,
		ActionReferenceID:   t.ActionReferenceID,
		Description:         t.Description,
		IdempotencyKey:      key,
		OccurredAt:          t.OccurredAt.UTC(),
	}
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
		OccurredAt:        m.OccurredAt.UTC(),
	}
	if len(m.BatchesDebited) > 0 {
		t.BatchesDebited = []transaction.BatchDebit(m.BatchesDebited)
	}
	if len(m.EntitlementsDebited) > 0 {
		t.EntitlementsDebited = []transaction.EntitlementDebit(m.EntitlementsDebited)
	}
	if m.IdempotencyKey != nil {
		t.IdempotencyKey = *m.IdempotencyKey
	}
	return t, nil
}

// allModels lists every table for AutoMigrate.
func allModels() []any {
	return []any{
		&accountModel{},
		&planModel{},
		&subscriptionModel{},
		&usageModel{},
		&entitlementModel{},
		&batchModel{},
		&transactionModel{},
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
