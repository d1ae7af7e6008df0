package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

// writeConflictCode is the server error code for a transaction write conflict.
const writeConflictCode = 112

// View runs fn in a snapshot session so every read sees one point in time.
func (s *Store) View(ctx context.Context, _ account.Ref, fn func(ctx context.Context, r store.Reader) error) error {
	sess, err := s.client.StartSession(options.Session().SetSnapshot(true))
	if err != nil {
		return fmt.Errorf("credits/mongo: start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	return classify(fn(mongo.NewSessionContext(ctx, sess), s))
}

// RunInAccountTx runs fn in one multi-document transaction. Conflicting
// units are reported as store.ErrConflict rather than retried here.
func (s *Store) RunInAccountTx(ctx context.Context, ref account.Ref, fn func(ctx context.Context, tx store.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("credits/mongo: start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txnOpts); err != nil {
		return fmt.Errorf("credits/mongo: start transaction: %w", err)
	}
	sctx := mongo.NewSessionContext(ctx, sess)

	if err := s.run(sctx, ref, fn); err != nil {
		_ = sess.AbortTransaction(context.WithoutCancel(ctx))
		return classify(err)
	}
	if err := sess.CommitTransaction(sctx); err != nil {
		_ = sess.AbortTransaction(context.WithoutCancel(ctx))
		return classify(fmt.Errorf("credits/mongo: commit: %w", err))
	}
	return nil
}

func (s *Store) run(ctx context.Context, ref account.Ref, fn func(ctx context.Context, tx store.Tx) error) error {
	_, err := s.col(colAccountLocks).UpdateOne(ctx,
		bson.M{"_id": ref.Key()},
		bson.M{"$inc": bson.M{"version": 1}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("credits/mongo: lock account: %w", err)
	}
	return fn(ctx, &tx{Store: s})
}

// tx issues every statement on the session carried by ctx.
type tx struct {
	*Store
}

func (t *tx) AppendUsage(ctx context.Context, r *usage.Record) error {
	if _, err := t.col(colUsage).InsertOne(ctx, toUsageModel(r)); err != nil {
		return fmt.Errorf("credits/mongo: append usage: %w", err)
	}
	return nil
}

func (t *tx) DebitEntitlement(ctx context.Context, entID id.EntitlementID, amount int64, at time.Time) error {
	if amount <= 0 {
		return credits.ErrInvalidAmount
	}
	res, err := t.col(colEntitlements).UpdateOne(ctx,
		bson.M{
			"_id":    entID.String(),
			"active": true,
			"$expr":  bson.M{"$lte": bson.A{bson.M{"$add": bson.A{"$used", amount}}, "$total"}},
		},
		bson.M{
			"$inc": bson.M{"used": amount},
			"$set": bson.M{"updated_at": at.UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("credits/mongo: debit entitlement: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := t.GetEntitlement(ctx, entID); err != nil {
			return err
		}
		return fmt.Errorf("%w: entitlement %s", store.ErrConflict, entID)
	}
	return nil
}

func (t *tx) DebitBatch(ctx context.Context, batchID id.BatchID, amount int64) error {
	if amount <= 0 {
		return credits.ErrInvalidAmount
	}
	res, err := t.col(colBatches).UpdateOne(ctx,
		bson.M{"_id": batchID.String(), "amount_remaining": bson.M{"$gte": amount}},
		bson.M{"$inc": bson.M{"amount_remaining": -amount}},
	)
	if err != nil {
		return fmt.Errorf("credits/mongo: debit batch: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := t.GetBatch(ctx, batchID); err != nil {
			return err
		}
		return fmt.Errorf("%w: batch %s", store.ErrConflict, batchID)
	}
	return nil
}

func (t *tx) CreateTransaction(ctx context.Context, txn *transaction.Transaction) error {
	if _, err := t.col(colTransactions).InsertOne(ctx, toTransactionModel(txn)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: idempotency key %q", store.ErrConflict, txn.IdempotencyKey)
		}
		return fmt.Errorf("credits/mongo: create transaction: %w", err)
	}
	return nil
}

// classify maps transient transaction failures to store.ErrConflict.
func classify(err error) error {
	if err == nil || errors.Is(err, store.ErrConflict) {
		return err
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(writeConflictCode) {
			return fmt.Errorf("%w: %w", store.ErrConflict, err)
		}
	}
	return err
}
