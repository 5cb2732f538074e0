package apikey

import (
	"context"
	"time"

	"github.com/xraph/resthook/id"
)

// Store defines the persistence contract for API keys.
type Store interface {
	// CreateKey persists a new key.
	CreateKey(ctx context.Context, k *Key) error

	// GetKey returns a key by ID.
	GetKey(ctx context.Context, keyID id.ID) (*Key, error)

	// GetKeyByHash returns the key whose secret hashes to hash.
	GetKeyByHash(ctx context.Context, hash string) (*Key, error)

	// ListKeys returns the tenant's keys, newest first.
	ListKeys(ctx context.Context, tenantID string) ([]*Key, error)

	// RevokeKey deactivates a key owned by tenantID. Revoking an already
	// revoked key leaves RevokedAt unchanged. A key owned by another tenant
	// is reported as not found.
	RevokeKey(ctx context.Context, keyID id.ID, tenantID string, at time.Time) error

	// TouchKey records a successful authentication.
	TouchKey(ctx context.Context, keyID id.ID, at time.Time) error
}
