// Package credits provides a credit accounting engine for Go applications.
//
// Credits is designed as a library, not a service. Import it directly into
// your Go application. Every account draws from three kinds of balance:
//
//   - Plan credits: a monthly allowance from the account's subscription
//   - Program credits: fixed entitlements provisioned per enrollment
//   - Bonus credits: granted batches that expire
//
// A consume debits plan first, then program, then bonus (soonest-expiring
// batch first) and is all-or-nothing: either the whole amount is debited and
// one transaction is written, or nothing changes.
//
// # Quick Start
//
//	s := memory.New()
//	eng := credits.New(s)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
//	ref := account.User("usr_42")
//	_ = eng.RegisterAccount(ctx, &account.Account{Ref: ref})
//
//	p := &plan.Plan{Name: "Pro", Slug: "pro", MonthlyCredits: 100}
//	_ = eng.CreatePlan(ctx, p)
//	_, _ = eng.Subscribe(ctx, ref, p.ID, time.Time{})
//
//	txn, err := eng.Consume(ctx, credits.ConsumeRequest{
//	    Account:    ref,
//	    Amount:     3,
//	    ActionType: "ai_insight",
//	})
//	if errors.Is(err, credits.ErrInsufficientCredits) {
//	    // nothing was debited
//	}
//
// # Stores
//
// The engine runs on any store.Store. Implementations ship for memory
// (tests and single-process use), PostgreSQL and SQLite via gorm
// (store/sql), and MongoDB (store/mongo, replica set required).
//
// # Concurrency
//
// Each consume runs inside a per-account store transaction. Write conflicts
// surface as store.ErrConflict and are retried a bounded number of times.
// A Locker (see lock/redislock) can additionally serialize consumes for an
// account across processes.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	plan_01h2xcejqtf2nbrexx3vqjhp41  // Plan ID
//	sub_01h2xcejqtf2nbrexx3vqjhp41   // Subscription ID
//	ctxn_01h455vb4pex5vsknk084sn02q  // Transaction ID
package credits
