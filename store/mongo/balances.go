package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/batch"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/transaction"
	"github.com/xraph/credits/usage"
)

// ==================== Usage Store ====================

func (s *Store) SumUsage(ctx context.Context, ref account.Ref, from, to time.Time) (usage.Totals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"account_key": ref.Key(),
			"occurred_at": bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":    bson.M{"pool": "$pool", "feature_key": "$feature_key"},
			"amount": bson.M{"$sum": "$amount"},
		}}},
	}

	cur, err := s.col(colUsage).Aggregate(ctx, pipeline)
	if err != nil {
		return usage.Totals{}, classify(fmt.Errorf("credits/mongo: sum usage: %w", err))
	}
	var rows []struct {
		Key struct {
			Pool       string `bson:"pool"`
			FeatureKey string `bson:"feature_key"`
		} `bson:"_id"`
		Amount int64 `bson:"amount"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return usage.Totals{}, classify(err)
	}

	var totals usage.Totals
	for _, row := range rows {
		totals.Add(&usage.Record{Pool: usage.Pool(row.Key.Pool), FeatureKey: row.Key.FeatureKey, Amount: row.Amount})
	}
	return totals, nil
}

func (s *Store) ListUsage(ctx context.Context, ref account.Ref, opts usage.ListOpts) ([]*usage.Record, error) {
	filter := bson.M{"account_key": ref.Key()}
	window := bson.M{}
	if !opts.From.IsZero() {
		window["$gte"] = opts.From.UTC()
	}
	if !opts.To.IsZero() {
		window["$lt"] = opts.To.UTC()
	}
	if len(window) > 0 {
		filter["occurred_at"] = window
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	var models []usageModel
	if err := findAll(ctx, s.col(colUsage), filter, findOpts, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list usage: %w", err)
	}
	records := make([]*usage.Record, 0, len(models))
	for i := range models {
		r, err := fromUsageModel(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// ==================== Entitlement Store ====================

func (s *Store) CreateEntitlement(ctx context.Context, e *entitlement.Entitlement) error {
	return insert(ctx, s.col(colEntitlements), toEntitlementModel(e), "entitlement")
}

func (s *Store) GetEntitlement(ctx context.Context, entID id.EntitlementID) (*entitlement.Entitlement, error) {
	var m entitlementModel
	err := s.col(colEntitlements).FindOne(ctx, bson.M{"_id": entID.String()}).Decode(&m)
	if err != nil {
		return nil, findErr(err, credits.ErrEntitlementNotFound, "entitlement")
	}
	return fromEntitlementModel(&m)
}

func (s *Store) ListEntitlements(ctx context.Context, ref account.Ref, opts entitlement.ListOpts) ([]*entitlement.Entitlement, error) {
	filter := bson.M{"account_key": ref.Key()}
	if opts.ActiveOnly {
		filter["active"] = true
	}
	if opts.FeatureKey != "" {
		filter["feature_key"] = opts.FeatureKey
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	var models []entitlementModel
	if err := findAll(ctx, s.col(colEntitlements), filter, findOpts, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list entitlements: %w", err)
	}
	ents := make([]*entitlement.Entitlement, 0, len(models))
	for i := range models {
		e, err := fromEntitlementModel(&models[i])
		if err != nil {
			return nil, err
		}
		ents = append(ents, e)
	}
	return ents, nil
}

func (s *Store) EndEnrollment(ctx context.Context, ref account.Ref, enrollmentID string, at time.Time) (int, error) {
	at = at.UTC()
	res, err := s.col(colEntitlements).UpdateMany(ctx,
		bson.M{"account_key": ref.Key(), "enrollment_id": enrollmentID, "active": true},
		bson.M{"$set": bson.M{"active": false, "ended_at": at, "updated_at": at}},
	)
	if err != nil {
		return 0, classify(fmt.Errorf("credits/mongo: end enrollment: %w", err))
	}
	return int(res.ModifiedCount), nil
}

// ==================== Batch Store ====================

func (s *Store) CreateBatch(ctx context.Context, b *batch.Batch) error {
	return insert(ctx, s.col(colBatches), toBatchModel(b), "batch")
}

func (s *Store) GetBatch(ctx context.Context, batchID id.BatchID) (*batch.Batch, error) {
	var m batchModel
	err := s.col(colBatches).FindOne(ctx, bson.M{"_id": batchID.String()}).Decode(&m)
	if err != nil {
		return nil, findErr(err, credits.ErrBatchNotFound, "batch")
	}
	return fromBatchModel(&m)
}

func (s *Store) ListBatches(ctx context.Context, ref account.Ref, opts batch.ListOpts) ([]*batch.Batch, error) {
	filter := bson.M{"account_key": ref.Key()}
	if !opts.LiveAt.IsZero() {
		filter["amount_remaining"] = bson.M{"$gt": 0}
		filter["expires_at"] = bson.M{"$gt": opts.LiveAt.UTC()}
	}
	findOpts := options.Find().SetSort(bson.D{
		{Key: "expires_at", Value: 1}, {Key: "granted_at", Value: 1}, {Key: "_id", Value: 1},
	})

	var models []batchModel
	if err := findAll(ctx, s.col(colBatches), filter, findOpts, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list batches: %w", err)
	}
	bs := make([]*batch.Batch, 0, len(models))
	for i := range models {
		b, err := fromBatchModel(&models[i])
		if err != nil {
			return nil, err
		}
		bs = append(bs, b)
	}
	batch.Sort(bs)
	return bs, nil
}

// ==================== Transaction Store ====================

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.col(colTransactions).FindOne(ctx, bson.M{"_id": txnID.String()}).Decode(&m)
	if err != nil {
		return nil, findErr(err, credits.ErrTransactionNotFound, "transaction")
	}
	return fromTransactionModel(&m)
}

func (s *Store) ListTransactions(ctx context.Context, ref account.Ref, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	var models []transactionModel
	if err := findAll(ctx, s.col(colTransactions), bson.M{"account_key": ref.Key()}, findOpts, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list transactions: %w", err)
	}
	txns := make([]*transaction.Transaction, 0, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}

func (s *Store) GetTransactionByIdempotencyKey(ctx context.Context, ref account.Ref, key string) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.col(colTransactions).FindOne(ctx, bson.M{"account_key": ref.Key(), "idempotency_key": key}).Decode(&m)
	if err != nil {
		return nil, findErr(err, credits.ErrTransactionNotFound, "transaction")
	}
	return fromTransactionModel(&m)
}
