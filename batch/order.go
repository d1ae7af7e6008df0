package batch

import (
	"slices"
	"time"
)

// Compare orders batches soonest-expiring first, then oldest grant, then id.
func Compare(a, b *Batch) int {
	if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
		return c
	}
	if c := a.GrantedAt.Compare(b.GrantedAt); c != 0 {
		return c
	}
	switch as, bs := a.ID.String(), b.ID.String(); {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

// Sort sorts batches in consumption order in place.
func Sort(bs []*Batch) {
	slices.SortStableFunc(bs, Compare)
}

// Eligible returns the live batches usable for featureKey in debit order.
// With a feature key, batches scoped to that feature come first and general
// batches follow; each group is in Compare order. Without one, every live
// batch is eligible in Compare order.
func Eligible(bs []*Batch, featureKey string, now time.Time) []*Batch {
	var scoped, general []*Batch
	for _, b := range bs {
		if !b.Live(now) {
			continue
		}
		switch {
		case featureKey == "":
			general = append(general, b)
		case b.FeatureKey == featureKey:
			scoped = append(scoped, b)
		case b.General():
			general = append(general, b)
		}
	}
	Sort(scoped)
	Sort(general)
	return append(scoped, general...)
}
