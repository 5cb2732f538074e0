package deliverylog

import (
	"context"

	"github.com/xraph/resthook/id"
)

// Store defines the persistence contract for the delivery log.
type Store interface {
	// CreateEntry persists a pending entry.
	CreateEntry(ctx context.Context, e *Entry) error

	// CompleteEntry writes the outcome fields of an existing entry.
	CompleteEntry(ctx context.Context, e *Entry) error

	// GetEntry returns an entry by ID.
	GetEntry(ctx context.Context, entryID id.ID) (*Entry, error)

	// ListByJob returns a job's entries in attempt order.
	ListByJob(ctx context.Context, jobID id.ID) ([]*Entry, error)

	// ListBySubscription returns a subscription's entries, newest first.
	ListBySubscription(ctx context.Context, subID id.ID, opts ListOpts) ([]*Entry, error)

	// ListRecentByTenant returns the tenant's newest entries.
	ListRecentByTenant(ctx context.Context, tenantID string, limit int) ([]*Entry, error)

	// CountEntries counts the tenant's entries by outcome.
	CountEntries(ctx context.Context, tenantID string) (Counts, error)
}
