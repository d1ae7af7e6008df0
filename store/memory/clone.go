package memory

import (
	"maps"
	"slices"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/subscription"
	"github.com/xraph/credits/transaction"
)

func cloneAccount(a *account.Account) *account.Account {
	c := *a
	c.Metadata = maps.Clone(a.Metadata)
	return &c
}

func clonePlan(p *plan.Plan) *plan.Plan {
	c := *p
	c.Allocations = slices.Clone(p.Allocations)
	c.Metadata = maps.Clone(p.Metadata)
	return &c
}

func cloneSubscription(s *subscription.Subscription) *subscription.Subscription {
	c := *s
	if s.CancelAt != nil {
		t := *s.CancelAt
		c.CancelAt = &t
	}
	if s.CanceledAt != nil {
		t := *s.CanceledAt
		c.CanceledAt = &t
	}
	c.Metadata = maps.Clone(s.Metadata)
	return &c
}

func cloneEntitlement(e *entitlement.Entitlement) *entitlement.Entitlement {
	c := *e
	if e.EndedAt != nil {
		t := *e.EndedAt
		c.EndedAt = &t
	}
	return &c
}

func cloneTransaction(t *transaction.Transaction) *transaction.Transaction {
	c := *t
	c.BatchesDebited = slices.Clone(t.BatchesDebited)
	c.EntitlementsDebited = slices.Clone(t.EntitlementsDebited)
	return &c
}
