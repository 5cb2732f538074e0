package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
	"github.com/xraph/resthook/subscription"
)

// subscriptionModel is the JSON representation stored in Redis.
type subscriptionModel struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	EventType       string     `json:"event_type"`
	TargetURL       string     `json:"target_url"`
	Active          bool       `json:"active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	LastError       string     `json:"last_error"`
	FailureCount    int        `json:"failure_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:              sub.ID.String(),
		TenantID:        sub.TenantID,
		EventType:       string(sub.EventType),
		TargetURL:       sub.TargetURL,
		Active:          sub.Active,
		LastTriggeredAt: sub.LastTriggeredAt,
		LastError:       sub.LastError,
		FailureCount:    sub.FailureCount,
		CreatedAt:       sub.CreatedAt,
		UpdatedAt:       sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.ID, err)
	}
	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              subID,
		TenantID:        m.TenantID,
		EventType:       catalog.EventType(m.EventType),
		TargetURL:       m.TargetURL,
		Active:          m.Active,
		LastTriggeredAt: m.LastTriggeredAt,
		LastError:       m.LastError,
		FailureCount:    m.FailureCount,
	}, nil
}

// recordOutcomeScript updates the delivery bookkeeping of a subscription in
// place so concurrent attempts never lose a failure increment.
// KEYS[1] = subscription key
// ARGV[1] = "failure" | "success"
// ARGV[2] = error text (failure) or delivery time (success)
// ARGV[3] = updated_at
var recordOutcomeScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return 0 end
local m = cjson.decode(raw)
if ARGV[1] == 'failure' then
    m.failure_count = (tonumber(m.failure_count) or 0) + 1
    m.last_error = ARGV[2]
else
    m.failure_count = 0
    m.last_error = ''
    m.last_triggered_at = ARGV[2]
end
m.updated_at = ARGV[3]
redis.call('SET', KEYS[1], cjson.encode(m))
return 1
`)

// setActiveScript flips the active flag in place and keeps the active-set
// indexes in step, leaving the delivery bookkeeping untouched.
// KEYS[1] = subscription key
// KEYS[2] = active set for the tenant and event type
// KEYS[3] = active set for the tenant
// ARGV[1] = "1" | "0"
// ARGV[2] = updated_at
// Returns {-1, ""} when the subscription is missing, else {changed, doc}.
var setActiveScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return {-1, ''} end
local m = cjson.decode(raw)
local want = ARGV[1] == '1'
local changed = 0
if m.active ~= want then
    m.active = want
    m.updated_at = ARGV[2]
    raw = cjson.encode(m)
    redis.call('SET', KEYS[1], raw)
    changed = 1
end
if want then
    redis.call('SADD', KEYS[2], m.id)
    redis.call('SADD', KEYS[3], m.id)
else
    redis.call('SREM', KEYS[2], m.id)
    redis.call('SREM', KEYS[3], m.id)
end
return {changed, raw}
`)

func (s *Store) saveActiveIndexes(ctx context.Context, m *subscriptionModel) error {
	pipe := s.rdb.Pipeline()
	if m.Active {
		pipe.SAdd(ctx, activeSetKey(m.TenantID, m.EventType), m.ID)
		pipe.SAdd(ctx, sSubTenantAlive+m.TenantID, m.ID)
	} else {
		pipe.SRem(ctx, activeSetKey(m.TenantID, m.EventType), m.ID)
		pipe.SRem(ctx, sSubTenantAlive+m.TenantID, m.ID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	m := toSubscriptionModel(sub)
	tk := tripleKey(m.TenantID, m.EventType, m.TargetURL)

	created, err := s.rdb.SetNX(ctx, tk, m.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("resthook/redis: upsert subscription index: %w", err)
	}

	if created {
		if err := s.setEntity(ctx, entityKey(prefixSubscription, m.ID), m); err != nil {
			return nil, fmt.Errorf("resthook/redis: create subscription: %w", err)
		}
		if err := s.rdb.ZAdd(ctx, zSubTenant+m.TenantID, goredis.Z{
			Score:  scoreFromTime(m.CreatedAt),
			Member: m.ID,
		}).Err(); err != nil {
			return nil, fmt.Errorf("resthook/redis: create subscription tenant index: %w", err)
		}
	} else {
		existingID, err := s.rdb.Get(ctx, tk).Result()
		if err != nil {
			return nil, fmt.Errorf("resthook/redis: upsert subscription lookup: %w", err)
		}
		_, existing, err := s.setActive(ctx, existingID, m.TenantID, m.EventType, true)
		if err != nil {
			return nil, fmt.Errorf("resthook/redis: reactivate subscription: %w", err)
		}
		return fromSubscriptionModel(existing)
	}

	if err := s.saveActiveIndexes(ctx, m); err != nil {
		return nil, fmt.Errorf("resthook/redis: subscription active index: %w", err)
	}
	return fromSubscriptionModel(m)
}

// setActive runs setActiveScript for one subscription and returns whether
// the flag changed along with the stored document.
func (s *Store) setActive(ctx context.Context, subID, tenantID, eventType string, active bool) (bool, *subscriptionModel, error) {
	flag := "0"
	if active {
		flag = "1"
	}
	res, err := setActiveScript.Run(ctx, s.rdb,
		[]string{
			entityKey(prefixSubscription, subID),
			activeSetKey(tenantID, eventType),
			sSubTenantAlive + tenantID,
		},
		flag, now().Format(time.RFC3339Nano),
	).Slice()
	if err != nil {
		return false, nil, err
	}
	if len(res) != 2 {
		return false, nil, fmt.Errorf("unexpected script reply %v", res)
	}

	changed, _ := res[0].(int64)
	if changed < 0 {
		return false, nil, resthook.ErrSubscriptionNotFound
	}
	raw, _ := res[1].(string)

	var m subscriptionModel
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return false, nil, fmt.Errorf("decode subscription: %w", err)
	}
	return changed == 1, &m, nil
}

func (s *Store) getSubscriptionModel(ctx context.Context, subID string) (*subscriptionModel, error) {
	var m subscriptionModel
	if err := s.getEntity(ctx, entityKey(prefixSubscription, subID), &m); err != nil {
		if isNotFound(err) {
			return nil, resthook.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("resthook/redis: get subscription: %w", err)
	}
	return &m, nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m, err := s.getSubscriptionModel(ctx, subID.String())
	if err != nil {
		return nil, err
	}
	return fromSubscriptionModel(m)
}

// loadSubscriptions resolves IDs, skipping any whose document is gone.
func (s *Store) loadSubscriptions(ctx context.Context, ids []string) ([]*subscriptionModel, error) {
	result := make([]*subscriptionModel, 0, len(ids))
	for _, subID := range ids {
		m, err := s.getSubscriptionModel(ctx, subID)
		if err != nil {
			if errors.Is(err, resthook.ErrSubscriptionNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, tenantID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	ids, err := s.rdb.ZRevRange(ctx, zSubTenant+tenantID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("resthook/redis: list subscriptions: %w", err)
	}

	models, err := s.loadSubscriptions(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, 0, len(models))
	for _, m := range models {
		if opts.EventType != nil && m.EventType != string(*opts.EventType) {
			continue
		}
		if opts.Active != nil && m.Active != *opts.Active {
			continue
		}
		sub, err := fromSubscriptionModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListActive(ctx context.Context, tenantID string, eventType *catalog.EventType) ([]*subscription.Subscription, error) {
	key := sSubTenantAlive + tenantID
	if eventType != nil {
		key = activeSetKey(tenantID, string(*eventType))
	}

	ids, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("resthook/redis: list active subscriptions: %w", err)
	}

	models, err := s.loadSubscriptions(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].CreatedAt.Before(models[j].CreatedAt)
	})

	result := make([]*subscription.Subscription, 0, len(models))
	for _, m := range models {
		if !m.Active {
			continue
		}
		sub, err := fromSubscriptionModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

func (s *Store) Deactivate(ctx context.Context, tenantID, targetURL string, eventType *catalog.EventType) (int64, error) {
	types := catalog.All()
	if eventType != nil {
		types = []catalog.EventType{*eventType}
	}

	var n int64
	for _, et := range types {
		subID, err := s.rdb.Get(ctx, tripleKey(tenantID, string(et), targetURL)).Result()
		if err != nil {
			if isRedisNil(err) {
				continue
			}
			return n, fmt.Errorf("resthook/redis: deactivate lookup: %w", err)
		}

		changed, _, err := s.setActive(ctx, subID, tenantID, string(et), false)
		if err != nil {
			if errors.Is(err, resthook.ErrSubscriptionNotFound) {
				continue
			}
			return n, fmt.Errorf("resthook/redis: deactivate subscription: %w", err)
		}
		if changed {
			n++
		}
	}
	return n, nil
}

func (s *Store) recordOutcome(ctx context.Context, subID id.ID, outcome, value string) error {
	n, err := recordOutcomeScript.Run(ctx, s.rdb,
		[]string{entityKey(prefixSubscription, subID.String())},
		outcome, value, now().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("resthook/redis: record %s: %w", outcome, err)
	}
	if n == 0 {
		return resthook.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) RecordSuccess(ctx context.Context, subID id.ID, at time.Time) error {
	return s.recordOutcome(ctx, subID, "success", at.UTC().Format(time.RFC3339Nano))
}

func (s *Store) RecordFailure(ctx context.Context, subID id.ID, errText string) error {
	return s.recordOutcome(ctx, subID, "failure", errText)
}

func (s *Store) CountSubscriptions(ctx context.Context, tenantID string) (subscription.Counts, error) {
	pipe := s.rdb.Pipeline()
	total := pipe.ZCard(ctx, zSubTenant+tenantID)
	active := pipe.SCard(ctx, sSubTenantAlive+tenantID)
	if _, err := pipe.Exec(ctx); err != nil {
		return subscription.Counts{}, fmt.Errorf("resthook/redis: count subscriptions: %w", err)
	}
	return subscription.Counts{Total: total.Val(), Active: active.Val()}, nil
}
