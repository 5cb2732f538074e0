package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/subscription"
)

// UpsertSubscription inserts sub or reactivates the document holding the
// same (tenant, event type, URL) triple, returning the stored row.
func (s *Store) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	m := toSubscriptionModel(sub)
	t := now()

	filter := bson.M{
		"tenant_id":  m.TenantID,
		"event_type": m.EventType,
		"target_url": m.TargetURL,
	}
	update := bson.M{
		"$set": bson.M{
			"active":     true,
			"updated_at": t,
		},
		"$setOnInsert": bson.M{
			"_id":           m.ID,
			"failure_count": 0,
			"last_error":    "",
			"created_at":    m.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored subscriptionModel
	if err := s.mdb.Collection(colSubscriptions).
		FindOneAndUpdate(ctx, filter, update, opts).
		Decode(&stored); err != nil {
		return nil, fmt.Errorf("resthook/mongo: upsert subscription: %w", err)
	}

	return fromSubscriptionModel(&stored)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	var m subscriptionModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, resthook.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("resthook/mongo: get subscription: %w", err)
	}

	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, tenantID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{"tenant_id": tenantID}
	if opts.EventType != nil {
		filter["event_type"] = string(*opts.EventType)
	}
	if opts.Active != nil {
		filter["active"] = *opts.Active
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("resthook/mongo: list subscriptions: %w", err)
	}

	return subscriptionsFromModels(models)
}

func (s *Store) ListActive(ctx context.Context, tenantID string, eventType *catalog.EventType) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{"tenant_id": tenantID, "active": true}
	if eventType != nil {
		filter["event_type"] = string(*eventType)
	}

	if err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("resthook/mongo: list active: %w", err)
	}

	return subscriptionsFromModels(models)
}

func (s *Store) Deactivate(ctx context.Context, tenantID, targetURL string, eventType *catalog.EventType) (int64, error) {
	filter := bson.M{
		"tenant_id":  tenantID,
		"target_url": targetURL,
		"active":     true,
	}
	if eventType != nil {
		filter["event_type"] = string(*eventType)
	}

	res, err := s.mdb.Collection(colSubscriptions).UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{"active": false, "updated_at": now()},
	})
	if err != nil {
		return 0, fmt.Errorf("resthook/mongo: deactivate: %w", err)
	}

	return res.ModifiedCount, nil
}

func (s *Store) RecordSuccess(ctx context.Context, subID id.ID, at time.Time) error {
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		Set("last_triggered_at", at).
		Set("last_error", "").
		Set("failure_count", 0).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("resthook/mongo: record success: %w", err)
	}
	if res.MatchedCount() == 0 {
		return resthook.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) RecordFailure(ctx context.Context, subID id.ID, errText string) error {
	res, err := s.mdb.Collection(colSubscriptions).UpdateOne(ctx,
		bson.M{"_id": subID.String()},
		bson.M{
			"$inc": bson.M{"failure_count": 1},
			"$set": bson.M{"last_error": errText, "updated_at": now()},
		},
	)
	if err != nil {
		return fmt.Errorf("resthook/mongo: record failure: %w", err)
	}
	if res.MatchedCount == 0 {
		return resthook.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) CountSubscriptions(ctx context.Context, tenantID string) (subscription.Counts, error) {
	total, err := s.mdb.NewFind((*subscriptionModel)(nil)).
		Filter(bson.M{"tenant_id": tenantID}).
		Count(ctx)
	if err != nil {
		return subscription.Counts{}, fmt.Errorf("resthook/mongo: count subscriptions: %w", err)
	}

	active, err := s.mdb.NewFind((*subscriptionModel)(nil)).
		Filter(bson.M{"tenant_id": tenantID, "active": true}).
		Count(ctx)
	if err != nil {
		return subscription.Counts{}, fmt.Errorf("resthook/mongo: count active subscriptions: %w", err)
	}

	return subscription.Counts{Total: total, Active: active}, nil
}

func subscriptionsFromModels(models []subscriptionModel) ([]*subscription.Subscription, error) {
	result := make([]*subscription.Subscription, 0, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}
