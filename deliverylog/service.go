package deliverylog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/subscription"
)

const (
	recentScan    = 50
	recentSurface = 10
)

// SubscriptionCounter is the slice of the subscription store Stats needs.
type SubscriptionCounter interface {
	CountSubscriptions(ctx context.Context, tenantID string) (subscription.Counts, error)
}

// Stats is the delivery dashboard of one tenant.
type Stats struct {
	TotalSubscriptions   int64    `json:"total_subscriptions"`
	ActiveSubscriptions  int64    `json:"active_subscriptions"`
	TotalDeliveries      int64    `json:"total_deliveries"`
	SuccessfulDeliveries int64    `json:"successful_deliveries"`
	FailedDeliveries     int64    `json:"failed_deliveries"`
	RecentDeliveries     []*Entry `json:"recent_deliveries"`
}

// Service is the read side of the delivery log.
type Service struct {
	store  Store
	subs   SubscriptionCounter
	logger *slog.Logger
}

// NewService creates a delivery log service.
func NewService(store Store, subs SubscriptionCounter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		subs:   subs,
		logger: logger,
	}
}

// Stats aggregates subscription and delivery counts for tenantID together
// with its most recent attempts.
func (svc *Service) Stats(ctx context.Context, tenantID string) (*Stats, error) {
	subCounts, err := svc.subs.CountSubscriptions(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count subscriptions: %w", err)
	}

	logCounts, err := svc.store.CountEntries(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}

	recent, err := svc.store.ListRecentByTenant(ctx, tenantID, recentScan)
	if err != nil {
		return nil, fmt.Errorf("list recent deliveries: %w", err)
	}
	if len(recent) > recentSurface {
		recent = recent[:recentSurface]
	}
	if recent == nil {
		recent = []*Entry{}
	}

	return &Stats{
		TotalSubscriptions:   subCounts.Total,
		ActiveSubscriptions:  subCounts.Active,
		TotalDeliveries:      logCounts.Total,
		SuccessfulDeliveries: logCounts.Success,
		FailedDeliveries:     logCounts.Failed,
		RecentDeliveries:     recent,
	}, nil
}

// History returns a subscription's attempts, newest first.
func (svc *Service) History(ctx context.Context, subID id.ID, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListBySubscription(ctx, subID, opts)
}

// Attempts returns a job's attempts in order.
func (svc *Service) Attempts(ctx context.Context, jobID id.ID) ([]*Entry, error) {
	return svc.store.ListByJob(ctx, jobID)
}

// Get returns a single entry.
func (svc *Service) Get(ctx context.Context, entryID id.ID) (*Entry, error) {
	return svc.store.GetEntry(ctx, entryID)
}
