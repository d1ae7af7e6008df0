package plan

import (
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDraft    Status = "draft"
)

// Plan grants a recurring monthly credit allowance to subscribed accounts.
type Plan struct {
	types.Entity
	ID             id.PlanID         `json:"id"`
	Name           string            `json:"name"`
	Slug           string            `json:"slug"`
	Description    string            `json:"description,omitempty"`
	Status         Status            `json:"status"`
	MonthlyCredits int64             `json:"monthly_credits"`
	Allocations    []Allocation      `json:"allocations,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Allocation is a feature-specific monthly credit pool. When its amount is
// positive it replaces the general allowance for that feature.
type Allocation struct {
	FeatureKey     string `json:"feature_key"`
	MonthlyCredits int64  `json:"monthly_credits"`
}

// Allocation returns the monthly allocation for featureKey, or 0.
func (p *Plan) Allocation(featureKey string) int64 {
	if p == nil || featureKey == "" {
		return 0
	}
	for _, a := range p.Allocations {
		if a.FeatureKey == featureKey {
			return a.MonthlyCredits
		}
	}
	return 0
}

// Validate checks amounts and allocation keys.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return errInvalid("name", "must not be empty")
	}
	if p.MonthlyCredits < 0 {
		return errInvalid("monthly_credits", "must not be negative")
	}
	seen := make(map[string]struct{}, len(p.Allocations))
	for _, a := range p.Allocations {
		if a.FeatureKey == "" {
			return errInvalid("allocations", "feature key must not be empty")
		}
		if a.MonthlyCredits < 0 {
			return errInvalid("allocations", "monthly credits must not be negative")
		}
		if _, dup := seen[a.FeatureKey]; dup {
			return errInvalid("allocations", "duplicate feature key "+a.FeatureKey)
		}
		seen[a.FeatureKey] = struct{}{}
	}
	return nil
}

// ValidationError reports an invalid plan field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "plan: " + e.Field + " " + e.Message
}

func errInvalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
