package plugin_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/transaction"
)

type recorder struct {
	name     string
	granted  atomic.Int32
	consumed atomic.Int32
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnCreditsGranted(_ context.Context, _ *batch.Batch) error {
	r.granted.Add(1)
	return nil
}

func (r *recorder) OnCreditsConsumed(_ context.Context, _ *transaction.Transaction, _ time.Duration) error {
	r.consumed.Add(1)
	return errors.New("sink unavailable")
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnInsufficientCredits(ctx context.Context, _ account.Ref, _ string, _, _ int64) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func TestRegisterDuplicate(t *testing.T) {
	r := plugin.NewRegistry()
	if err := r.Register(&recorder{name: "rec"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&recorder{name: "rec"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	if r.Get("rec") == nil || r.Get("missing") != nil {
		t.Error("Get returned the wrong plugin")
	}
}

func TestEmitDispatchesOnlyImplementedHooks(t *testing.T) {
	rec := &recorder{name: "rec"}
	r := plugin.NewRegistry()
	if err := r.Register(rec); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	r.EmitCreditsGranted(ctx, &batch.Batch{})
	r.EmitCreditsConsumed(ctx, &transaction.Transaction{}, time.Millisecond)
	r.EmitInsufficientCredits(ctx, account.User("u_1"), "", 1, 2)

	if rec.granted.Load() != 1 {
		t.Errorf("granted = %d, want 1", rec.granted.Load())
	}
	if rec.consumed.Load() != 1 {
		t.Errorf("consumed = %d, want 1 (plugin errors are swallowed)", rec.consumed.Load())
	}
}

func TestEmitTimesOut(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	if err := r.Register(slow{}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	r.EmitInsufficientCredits(context.Background(), account.User("u_1"), "", 0, 1)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emit blocked for %s", elapsed)
	}
}
