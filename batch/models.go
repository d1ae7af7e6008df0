// Package batch models discrete, expiring grants of bonus credit.
package batch

import (
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
)

// SourceType records where a batch came from.
type SourceType string

const (
	SourceManual      SourceType = "manual"
	SourcePromotional SourceType = "promotional"
	SourcePurchase    SourceType = "purchase"
	SourceRollover    SourceType = "rollover"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceManual, SourcePromotional, SourcePurchase, SourceRollover:
		return true
	}
	return false
}

// Batch is one bonus grant. 0 <= AmountRemaining <= AmountOriginal always
// holds. Exhausted and expired batches are kept for audit.
type Batch struct {
	ID              id.BatchID  `json:"id"`
	Account         account.Ref `json:"account"`
	AmountOriginal  int64       `json:"amount_original"`
	AmountRemaining int64       `json:"amount_remaining"`
	FeatureKey      string      `json:"feature_key,omitempty"`
	ExpiresAt       time.Time   `json:"expires_at"`
	SourceType      SourceType  `json:"source_type"`
	Description     string      `json:"description,omitempty"`
	GrantedAt       time.Time   `json:"granted_at"`
}

// Expired reports whether the batch has expired at now.
func (b *Batch) Expired(now time.Time) bool {
	return !b.ExpiresAt.After(now)
}

// Live reports whether the batch contributes to the available balance.
func (b *Batch) Live(now time.Time) bool {
	return b.AmountRemaining > 0 && !b.Expired(now)
}

// General reports whether the batch is usable against any feature.
func (b *Batch) General() bool { return b.FeatureKey == "" }
