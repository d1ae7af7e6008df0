package credits_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/credits"
	"github.com/xraph/credits/store"
)

func TestErrorClassification(t *testing.T) {
	insufficient := &credits.InsufficientCreditsError{Available: 3, Required: 5}

	tests := []struct {
		name         string
		err          error
		notFound     bool
		retryable    bool
		insufficient bool
	}{
		{"account not found", credits.ErrAccountNotFound, true, false, false},
		{"wrapped batch not found", fmt.Errorf("load: %w", credits.ErrBatchNotFound), true, false, false},
		{"transient conflict", credits.ErrTransientConflict, false, true, false},
		{"store conflict", fmt.Errorf("commit: %w", store.ErrConflict), false, true, false},
		{"insufficient", insufficient, false, false, true},
		{"invalid amount", credits.ErrInvalidAmount, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, credits.IsNotFound(tt.err))
			assert.Equal(t, tt.retryable, credits.IsRetryable(tt.err))
			assert.Equal(t, tt.insufficient, credits.IsInsufficientCredits(tt.err))
		})
	}
}

func TestInsufficientCreditsError(t *testing.T) {
	err := error(&credits.InsufficientCreditsError{FeatureKey: "ai_insight", Available: 3, Required: 5})

	var ice *credits.InsufficientCreditsError
	assert.True(t, errors.As(err, &ice))
	assert.Equal(t, int64(2), ice.Shortfall())
	assert.Contains(t, err.Error(), "available 3, required 5")
	assert.True(t, errors.Is(err, credits.ErrInsufficientCredits))
}

func TestValidationErrorIsInvalidInput(t *testing.T) {
	err := credits.ValidationError{Field: "action_type", Message: "is required"}
	assert.ErrorIs(t, err, credits.ErrInvalidInput)
	assert.Equal(t, "credits: validation failed for action_type: is required", err.Error())
}

func TestMultiError(t *testing.T) {
	var me credits.MultiError
	assert.False(t, me.HasErrors())
	me.Add(nil)
	me.Add(credits.ErrInvalidAmount)
	me.Add(credits.ErrPlanNotFound)
	assert.True(t, me.HasErrors())
	assert.Equal(t, credits.ErrInvalidAmount, me.First())
	assert.ErrorIs(t, me, credits.ErrPlanNotFound)
	assert.Equal(t, "credits: 2 errors occurred", me.Error())
}
