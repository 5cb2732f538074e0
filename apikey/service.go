package apikey

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
)

// DefaultEnvironment is embedded in secrets when none is configured.
const DefaultEnvironment = "live"

// Config configures the key service.
type Config struct {
	// Environment is the "<env>" part of issued secrets, e.g. "live" or "dev".
	Environment string
}

// Service issues, validates and revokes API keys.
type Service struct {
	store  Store
	env    string
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a key service. An invalid environment is a
// configuration error.
func NewService(store Store, cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env := cfg.Environment
	if env == "" {
		env = DefaultEnvironment
	}
	if !envPattern.MatchString(env) {
		return nil, &ValidationError{Field: "environment", Message: "must be 1-16 lowercase letters or digits"}
	}

	return &Service{
		store:  store,
		env:    env,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}, nil
}

// Issue creates a key for tenantID and returns the full secret together with
// the stored record. The secret cannot be recovered later.
func (svc *Service) Issue(ctx context.Context, tenantID string, in IssueInput) (string, *Key, error) {
	if tenantID == "" {
		return "", nil, &ValidationError{Field: "tenant_id", Message: "required"}
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(svc.now()) {
		return "", nil, &ValidationError{Field: "expires_at", Message: "must be in the future"}
	}

	secret := newSecret(svc.env)

	k := &Key{
		Entity:    entity.New(),
		ID:        id.NewAPIKeyID(),
		TenantID:  tenantID,
		Prefix:    DisplayPrefix(secret),
		Hash:      HashSecret(secret),
		Label:     in.Label,
		Active:    true,
		ExpiresAt: in.ExpiresAt,
	}

	if err := svc.store.CreateKey(ctx, k); err != nil {
		return "", nil, fmt.Errorf("create api key: %w", err)
	}

	return secret, k, nil
}

// Authenticate resolves a presented secret to its key. Empty, unknown,
// revoked and expired secrets all yield ErrUnauthenticated; only storage
// failures produce a different error.
func (svc *Service) Authenticate(ctx context.Context, secret string) (*Key, error) {
	hash := HashSecret(secret)

	k, err := svc.store.GetKeyByHash(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("look up api key: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(hash), []byte(k.Hash)) != 1 {
		return nil, ErrUnauthenticated
	}

	now := svc.now()
	if secret == "" || !k.Usable(now) {
		return nil, ErrUnauthenticated
	}

	if err := svc.store.TouchKey(ctx, k.ID, now); err != nil {
		svc.logger.WarnContext(ctx, "apikey: failed to record last use",
			"key_id", k.ID.String(),
			"error", err,
		)
	} else {
		k.LastUsedAt = &now
	}

	return k, nil
}

// Validate returns the tenant that owns secret.
func (svc *Service) Validate(ctx context.Context, secret string) (string, error) {
	k, err := svc.Authenticate(ctx, secret)
	if err != nil {
		return "", err
	}
	return k.TenantID, nil
}

// Get returns a key owned by tenantID.
func (svc *Service) Get(ctx context.Context, keyID id.ID, tenantID string) (*Key, error) {
	k, err := svc.store.GetKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if k.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return k, nil
}

// List returns the tenant's keys, newest first.
func (svc *Service) List(ctx context.Context, tenantID string) ([]*Key, error) {
	return svc.store.ListKeys(ctx, tenantID)
}

// Revoke deactivates a key. It is idempotent and scoped to tenantID.
func (svc *Service) Revoke(ctx context.Context, keyID id.ID, tenantID string) error {
	if tenantID == "" {
		return &ValidationError{Field: "tenant_id", Message: "required"}
	}
	return svc.store.RevokeKey(ctx, keyID, tenantID, svc.now())
}
