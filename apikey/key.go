// Package apikey issues and validates the API keys tenants use to call the
// REST-Hook endpoints.
//
// A secret has the form "zap_<env>_<64 hex>". Only its SHA-256 digest and a
// short display prefix are stored; the secret itself is shown once, at issue.
package apikey

import (
	"time"

	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
)

// Key is a stored API credential.
type Key struct {
	entity.Entity

	ID       id.ID  `json:"id"`
	TenantID string `json:"tenant_id"`

	// Prefix is the first characters of the secret, safe to display.
	Prefix string `json:"prefix"`

	// Hash is the hex SHA-256 digest of the full secret.
	Hash string `json:"-"`

	Label      string     `json:"label,omitempty"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Usable reports whether the key may authenticate a request at now.
func (k *Key) Usable(now time.Time) bool {
	if !k.Active || k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// IssueInput describes a key to issue.
type IssueInput struct {
	Label     string
	ExpiresAt *time.Time
}
