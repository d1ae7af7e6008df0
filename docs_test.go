package credits_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store/memory"
)

// TestDocumentationExamples verifies that the package documentation examples work.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()

		eng := credits.New(memory.New(),
			credits.WithLogger(slog.Default()),
			credits.WithMaxAttempts(5),
		)
		if err := eng.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer eng.Stop()

		ref := account.User("usr_42")
		if err := eng.RegisterAccount(ctx, &account.Account{Ref: ref}); err != nil {
			t.Fatal(err)
		}

		p := &plan.Plan{Name: "Pro", Slug: "pro", MonthlyCredits: 100}
		if err := eng.CreatePlan(ctx, p); err != nil {
			t.Fatal(err)
		}
		if _, err := eng.Subscribe(ctx, ref, p.ID, time.Time{}); err != nil {
			t.Fatal(err)
		}

		txn, err := eng.Consume(ctx, credits.ConsumeRequest{
			Account:    ref,
			Amount:     3,
			ActionType: "ai_insight",
		})
		if err != nil {
			t.Fatal(err)
		}
		if txn.FromPlan != 3 {
			t.Errorf("FromPlan = %d, want 3", txn.FromPlan)
		}

		_, err = eng.Consume(ctx, credits.ConsumeRequest{Account: ref, Amount: 1000, ActionType: "ai_insight"})
		if !errors.Is(err, credits.ErrInsufficientCredits) {
			t.Errorf("expected ErrInsufficientCredits, got %v", err)
		}
	})

	t.Run("ThreeSourcesExample", func(t *testing.T) {
		ctx := context.Background()
		eng := credits.New(memory.New())

		ref := account.Organization("org_7")
		if err := eng.RegisterAccount(ctx, &account.Account{Ref: ref, DisplayName: "Acme"}); err != nil {
			t.Fatal(err)
		}

		p := &plan.Plan{Name: "Starter", Slug: "starter", MonthlyCredits: 10}
		if err := eng.CreatePlan(ctx, p); err != nil {
			t.Fatal(err)
		}
		if _, err := eng.Subscribe(ctx, ref, p.ID, time.Time{}); err != nil {
			t.Fatal(err)
		}
		if _, err := eng.ProvisionEntitlement(ctx, ref, "enr_1", "coaching", 5); err != nil {
			t.Fatal(err)
		}
		if _, err := eng.Grant(ctx, credits.GrantRequest{
			Account:    ref,
			Amount:     20,
			ExpiresAt:  time.Now().Add(30 * 24 * time.Hour),
			SourceType: batch.SourcePromotional,
		}); err != nil {
			t.Fatal(err)
		}

		txn, err := eng.Consume(ctx, credits.ConsumeRequest{
			Account:    ref,
			Amount:     18,
			FeatureKey: "coaching",
			ActionType: "coaching_session",
		})
		if err != nil {
			t.Fatal(err)
		}
		if txn.FromPlan != 10 || txn.FromProgram != 5 || txn.FromBonus != 3 {
			t.Errorf("split = %d/%d/%d, want 10/5/3", txn.FromPlan, txn.FromProgram, txn.FromBonus)
		}

		sum, err := eng.Summary(ctx, ref)
		if err != nil {
			t.Fatal(err)
		}
		if sum.TotalAvailable != 17 {
			t.Errorf("TotalAvailable = %d, want 17", sum.TotalAvailable)
		}
	})
}
