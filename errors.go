package resthook

import (
	"errors"

	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/subscription"
)

// Sentinel errors returned by resthook operations. The not-found errors are
// declared by their subsystem package and re-exported here so callers and
// store backends can use one import.
var (
	// ErrNoStore is returned when a Relay is created without a store.
	ErrNoStore = errors.New("resthook: store is required")

	// ErrUnauthenticated is returned for every rejected API key.
	ErrUnauthenticated = apikey.ErrUnauthenticated

	// ErrAPIKeyNotFound is returned when a key is missing or owned by another tenant.
	ErrAPIKeyNotFound = apikey.ErrNotFound

	// ErrSubscriptionNotFound is returned when a subscription cannot be found.
	ErrSubscriptionNotFound = subscription.ErrNotFound

	// ErrJobNotFound is returned when a delivery job cannot be found.
	ErrJobNotFound = delivery.ErrJobNotFound

	// ErrJobNotReplayable is returned when replaying a job that has not failed.
	ErrJobNotReplayable = delivery.ErrNotReplayable

	// ErrLogEntryNotFound is returned when a delivery log entry cannot be found.
	ErrLogEntryNotFound = deliverylog.ErrEntryNotFound

	// ErrUnknownEventType is returned when triggering an event outside the catalogue.
	ErrUnknownEventType = catalog.ErrUnknownEventType

	// ErrInvalidPayload is returned when a payload cannot be encoded as JSON.
	ErrInvalidPayload = errors.New("resthook: payload is not JSON serializable")

	// ErrPayloadValidationFailed is returned when a payload fails its event schema.
	ErrPayloadValidationFailed = errors.New("resthook: payload validation failed")

	// ErrStoreClosed is returned when a store operation is attempted after Close.
	ErrStoreClosed = errors.New("resthook: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("resthook: migration failed")
)
