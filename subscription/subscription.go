// Package subscription is the registry of REST-Hook subscriptions: which
// tenant wants which event delivered to which URL.
package subscription

import (
	"errors"
	"time"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
)

// ErrNotFound is returned when a subscription does not exist.
var ErrNotFound = errors.New("resthook: subscription not found")

// Subscription asks for one event type of one tenant to be POSTed to
// TargetURL. (TenantID, EventType, TargetURL) is unique; unsubscribing
// deactivates the row instead of deleting it.
type Subscription struct {
	entity.Entity

	ID        id.ID             `json:"id"`
	TenantID  string            `json:"tenant_id"`
	EventType catalog.EventType `json:"event_type"`
	TargetURL string            `json:"target_url"`
	Active    bool              `json:"active"`

	// Delivery bookkeeping, written by the engine after each attempt.
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	FailureCount    int        `json:"failure_count"`
}

// ListOpts configures filtering and pagination for List.
type ListOpts struct {
	Offset    int
	Limit     int
	EventType *catalog.EventType
	Active    *bool
}

// Counts summarises a tenant's subscriptions.
type Counts struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "subscription validation: " + e.Field + ": " + e.Message
}
