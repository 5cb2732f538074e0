package subscription

import (
	"context"
	"time"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/id"
)

// Store defines the persistence contract for subscriptions.
type Store interface {
	// UpsertSubscription inserts sub, or reactivates the existing row with
	// the same (tenant, event type, target URL). It returns the stored row,
	// which keeps its original ID on reactivation.
	UpsertSubscription(ctx context.Context, sub *Subscription) (*Subscription, error)

	// GetSubscription returns a subscription by ID.
	GetSubscription(ctx context.Context, subID id.ID) (*Subscription, error)

	// ListSubscriptions returns a tenant's subscriptions, newest first.
	ListSubscriptions(ctx context.Context, tenantID string, opts ListOpts) ([]*Subscription, error)

	// ListActive returns the active subscriptions of a tenant, restricted to
	// one event type when eventType is non-nil. This is the trigger hot path.
	ListActive(ctx context.Context, tenantID string, eventType *catalog.EventType) ([]*Subscription, error)

	// Deactivate marks matching active rows inactive and returns how many
	// changed. A nil eventType matches every event type for the URL.
	Deactivate(ctx context.Context, tenantID, targetURL string, eventType *catalog.EventType) (int64, error)

	// RecordSuccess stamps LastTriggeredAt and clears the failure state.
	RecordSuccess(ctx context.Context, subID id.ID, at time.Time) error

	// RecordFailure atomically increments FailureCount and stores errText.
	RecordFailure(ctx context.Context, subID id.ID, errText string) error

	// CountSubscriptions returns total and active counts for a tenant.
	CountSubscriptions(ctx context.Context, tenantID string) (Counts, error)
}
