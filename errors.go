package credits

import (
	"errors"
	"fmt"

	"github.com/xraph/credits/store"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("credits: not found")
	ErrAlreadyExists = errors.New("credits: already exists")
	ErrInvalidInput  = errors.New("credits: invalid input")
	ErrInvalidAmount = errors.New("credits: invalid amount")

	// Account errors
	ErrAccountNotFound = fmt.Errorf("%w: account", ErrNotFound)

	// Plan errors
	ErrPlanNotFound = fmt.Errorf("%w: plan", ErrNotFound)
	ErrPlanArchived = errors.New("credits: plan is archived")

	// Subscription errors
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscription", ErrNotFound)
	ErrSubscriptionExists   = errors.New("credits: account already has a subscription covering that period")
	ErrSubscriptionCanceled = errors.New("credits: subscription is canceled")
	ErrNoActiveSubscription = fmt.Errorf("%w: active subscription", ErrNotFound)

	// Balance errors
	ErrEntitlementNotFound = fmt.Errorf("%w: entitlement", ErrNotFound)
	ErrBatchNotFound       = fmt.Errorf("%w: batch", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("%w: transaction", ErrNotFound)

	// Consumption errors
	ErrInsufficientCredits = errors.New("credits: insufficient credits")
	ErrTransientConflict   = errors.New("credits: transient conflict, retry the call")
	ErrIdempotencyConflict = errors.New("credits: idempotency key reused with a different request")
)

// InsufficientCreditsError reports the shortfall of a failed consume.
// It matches ErrInsufficientCredits under errors.Is.
type InsufficientCreditsError struct {
	FeatureKey string
	Available  int64
	Required   int64
}

func (e *InsufficientCreditsError) Error() string {
	if e.FeatureKey != "" {
		return fmt.Sprintf("credits: insufficient credits for %s: available %d, required %d", e.FeatureKey, e.Available, e.Required)
	}
	return fmt.Sprintf("credits: insufficient credits: available %d, required %d", e.Available, e.Required)
}

// Is reports whether target is ErrInsufficientCredits.
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// Shortfall returns how many credits were missing.
func (e *InsufficientCreditsError) Shortfall() int64 {
	return e.Required - e.Available
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets ValidationError match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "credits: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("credits: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInsufficientCredits returns true if err carries an insufficient-credits
// outcome. It is a business result and must not be retried.
func IsInsufficientCredits(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientConflict) ||
		errors.Is(err, store.ErrConflict)
}
