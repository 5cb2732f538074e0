package subscription

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
)

// Service manages subscription lifecycle.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new subscription service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Subscribe registers targetURL for eventType. Subscribing again with the
// same triple reactivates and returns the existing subscription.
func (svc *Service) Subscribe(ctx context.Context, tenantID string, eventType catalog.EventType, targetURL string) (*Subscription, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Message: "required"}
	}
	if !eventType.Valid() {
		return nil, &ValidationError{Field: "event_type", Message: "unknown event type " + string(eventType)}
	}
	if err := ValidateTargetURL(targetURL); err != nil {
		return nil, err
	}

	sub, err := svc.store.UpsertSubscription(ctx, &Subscription{
		Entity:    entity.New(),
		ID:        id.NewSubscriptionID(),
		TenantID:  tenantID,
		EventType: eventType,
		TargetURL: targetURL,
		Active:    true,
	})
	if err != nil {
		return nil, err
	}

	svc.logger.DebugContext(ctx, "subscription: active",
		"subscription_id", sub.ID.String(),
		"tenant_id", tenantID,
		"event_type", string(eventType),
	)

	return sub, nil
}

// Unsubscribe deactivates the tenant's subscriptions for targetURL,
// restricted to eventType when non-nil. It reports whether any row changed.
func (svc *Service) Unsubscribe(ctx context.Context, tenantID, targetURL string, eventType *catalog.EventType) (bool, error) {
	if tenantID == "" {
		return false, &ValidationError{Field: "tenant_id", Message: "required"}
	}
	if targetURL == "" {
		return false, &ValidationError{Field: "target_url", Message: "required"}
	}
	if eventType != nil && !eventType.Valid() {
		return false, &ValidationError{Field: "event_type", Message: "unknown event type " + string(*eventType)}
	}

	n, err := svc.store.Deactivate(ctx, tenantID, targetURL, eventType)
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// ListActive returns the tenant's active subscriptions.
func (svc *Service) ListActive(ctx context.Context, tenantID string, eventType *catalog.EventType) ([]*Subscription, error) {
	return svc.store.ListActive(ctx, tenantID, eventType)
}

// Get returns a subscription by ID.
func (svc *Service) Get(ctx context.Context, subID id.ID) (*Subscription, error) {
	return svc.store.GetSubscription(ctx, subID)
}

// List returns the tenant's subscriptions, active or not.
func (svc *Service) List(ctx context.Context, tenantID string, opts ListOpts) ([]*Subscription, error) {
	return svc.store.ListSubscriptions(ctx, tenantID, opts)
}

// ValidateTargetURL accepts absolute http and https URLs with a host.
func ValidateTargetURL(raw string) error {
	if raw == "" {
		return &ValidationError{Field: "target_url", Message: "required"}
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ValidationError{Field: "target_url", Message: "must be an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "target_url", Message: "scheme must be http or https"}
	}

	return nil
}
