// Package mongo implements store.Store on the official MongoDB driver.
//
// Account units run in a multi-document transaction that first bumps a
// per-account lock document; two concurrent units on one account therefore
// write-conflict and one of them fails with store.ErrConflict. Debits are
// conditional $inc updates. Transactions require a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/subscription"
)

// Collection name constants.
const (
	colAccounts      = "credit_accounts"
	colPlans         = "credit_plans"
	colSubscriptions = "credit_subscriptions"
	colUsage         = "credit_usage_records"
	colEntitlements  = "credit_entitlements"
	colBatches       = "credit_batches"
	colTransactions  = "credit_transactions"
	colAccountLocks  = "credit_account_locks"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a store on database name of an open client.
func New(client *mongo.Client, name string) *Store {
	return &Store{client: client, db: client.Database(name)}
}

// Connect opens a client for uri and returns a store on database name.
func Connect(ctx context.Context, uri, name string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: connect: %w", err)
	}
	s := New(client, name)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

// Migrate creates indexes for all credits collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.col(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("credits/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	return insert(ctx, s.col(colAccounts), toAccountModel(a), "account")
}

func (s *Store) GetAccount(ctx context.Context, ref account.Ref) (*account.Account, error) {
	var m accountModel
	err := s.col(colAccounts).FindOne(ctx, bson.M{"_id": ref.Key()}).Decode(&m)
	if err != nil {
		return nil, findErr(err, credits.ErrAccountNotFound, "account")
	}
	return fromAccountModel(&m), nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	return insert(ctx, s.col(colPlans), toPlanModel(p), "plan")
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	var m planModel
	err := s.col(colPlans).FindOne(ctx, bson.M{"_id": planID.String()}).Decode(&m)
	if err != nil {
		return nil, findErr(err, credits.ErrPlanNotFound, "plan")
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	var models []planModel
	if err := findAll(ctx, s.col(colPlans), filter, findOpts, &models); err != nil {
		return nil, fmt.Errorf("credits/mongo: list plans: %w", err)
	}
	plans := make([]*plan.Plan, 0, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (s *Store) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.col(colPlans).UpdateOne(ctx,
		bson.M{"_id": planID.String()},
		bson.M{"$set": bson.M{"status": string(plan.StatusArchived), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("credits/mongo: archive plan: %w", err)
	}
	if res.MatchedCount == 0 {
		return credits.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	return insert(ctx, s.col(colSubscriptions), toSubscriptionModel(sub), "subscription")
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.col(colSubscriptions).FindOne(ctx, bson.M{"_id": subID.String()}).Decode(&m)
	if err != nil {
		return nil, findErr(err, credits.ErrSubscriptionNotFound, "subscription")
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, ref account.Ref, at time.Time) (*subscription.Subscription, error) {
	at = at.UTC()
	filter := bson.M{
		"account_key": ref.Key(),
		"status":      bson.M{"$in": bson.A{string(subscription.StatusActive), string(subscription.StatusTrialing)}},
		"anchor_at":   bson.M{"$lte": at},
		"$or": bson.A{
			bson.M{"cancel_at": bson.M{"$exists": false}},
			bson.M{"cancel_at": nil},
			bson.M{"cancel_at": bson.M{"$gt": at}},
		},
	}
	findOpts := options.FindOne().SetSort(bson.D{{Key: "anchor_at", Value: -1}})

	var m subscriptionModel
	if err := s.col(colSubscriptions).FindOne(ctx, filter, findOpts).Decode(&m); err != nil {
		return nil, findErr(err, credits.ErrNoActiveSubscription, "active subscription")
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) HasSubscriptionFrom(ctx context.Context, ref account.Ref, at time.Time) (bool, error) {
	at = at.UTC()
	filter := bson.M{
		"account_key": ref.Key(),
		"status":      bson.M{"$in": bson.A{string(subscription.StatusActive), string(subscription.StatusTrialing)}},
		"$or": bson.A{
			bson.M{"cancel_at": bson.M{"$exists": false}},
			bson.M{"cancel_at": nil},
			bson.M{
				"cancel_at": bson.M{"$gt": at},
				"$expr":     bson.M{"$gt": bson.A{"$cancel_at", "$anchor_at"}},
			},
		},
	}
	n, err := s.col(colSubscriptions).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("credits/mongo: check subscriptions: %w", err)
	}
	return n > 0, nil
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, cancelAt time.Time, immediate bool) error {
	cancelAt = cancelAt.UTC()
	set := bson.M{"cancel_at": cancelAt}
	if immediate {
		set["status"] = string(subscription.StatusCanceled)
		set["canceled_at"] = cancelAt
		set["updated_at"] = cancelAt
	}
	res, err := s.col(colSubscriptions).UpdateOne(ctx, bson.M{"_id": subID.String()}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("credits/mongo: cancel subscription: %w", err)
	}
	if res.MatchedCount == 0 {
		return credits.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Helpers ====================

func insert(ctx context.Context, col *mongo.Collection, doc any, what string) error {
	if _, err := col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return credits.ErrAlreadyExists
		}
		return classify(fmt.Errorf("credits/mongo: create %s: %w", what, err))
	}
	return nil
}

func findAll(ctx context.Context, col *mongo.Collection, filter any, opts *options.FindOptionsBuilder, out any) error {
	cur, err := col.Find(ctx, filter, opts)
	if err != nil {
		return classify(err)
	}
	return cur.All(ctx, out)
}

func findErr(err, notFound error, what string) error {
	if isNoDocuments(err) {
		return notFound
	}
	return classify(fmt.Errorf("credits/mongo: get %s: %w", what, err))
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all credits collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlans: {
			{
				Keys: bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"slug": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "account_key", Value: 1}, {Key: "anchor_at", Value: -1}}},
		},
		colUsage: {
			{Keys: bson.D{{Key: "account_key", Value: 1}, {Key: "occurred_at", Value: 1}}},
			{Keys: bson.D{{Key: "transaction_id", Value: 1}}},
		},
		colEntitlements: {
			{Keys: bson.D{{Key: "account_key", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "account_key", Value: 1}, {Key: "enrollment_id", Value: 1}}},
		},
		colBatches: {
			{Keys: bson.D{{Key: "account_key", Value: 1}, {Key: "expires_at", Value: 1}, {Key: "granted_at", Value: 1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "account_key", Value: 1}, {Key: "occurred_at", Value: -1}}},
			{
				Keys: bson.D{{Key: "account_key", Value: 1}, {Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$type": "string"}}),
			},
		},
	}
}
