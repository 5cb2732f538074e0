// Package store defines the composite Store interface for all resthook
// persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them; every backend under store/ implements the whole of it.
package store

import (
	"context"

	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/subscription"
)

// Store is the aggregate persistence interface.
type Store interface {
	apikey.Store
	subscription.Store
	delivery.Store
	deliverylog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
