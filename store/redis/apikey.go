package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
)

// apiKeyModel is the JSON representation stored in Redis.
type apiKeyModel struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Prefix     string     `json:"prefix"`
	Hash       string     `json:"hash"`
	Label      string     `json:"label"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toAPIKeyModel(k *apikey.Key) *apiKeyModel {
	return &apiKeyModel{
		ID:         k.ID.String(),
		TenantID:   k.TenantID,
		Prefix:     k.Prefix,
		Hash:       k.Hash,
		Label:      k.Label,
		Active:     k.Active,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		RevokedAt:  k.RevokedAt,
		CreatedAt:  k.CreatedAt,
		UpdatedAt:  k.UpdatedAt,
	}
}

func fromAPIKeyModel(m *apiKeyModel) (*apikey.Key, error) {
	keyID, err := id.ParseAPIKeyID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse api key ID %q: %w", m.ID, err)
	}
	return &apikey.Key{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         keyID,
		TenantID:   m.TenantID,
		Prefix:     m.Prefix,
		Hash:       m.Hash,
		Label:      m.Label,
		Active:     m.Active,
		ExpiresAt:  m.ExpiresAt,
		LastUsedAt: m.LastUsedAt,
		RevokedAt:  m.RevokedAt,
	}, nil
}

func (s *Store) CreateKey(ctx context.Context, k *apikey.Key) error {
	m := toAPIKeyModel(k)

	ok, err := s.rdb.SetNX(ctx, uniqueKeyHash+m.Hash, m.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("resthook/redis: create key index: %w", err)
	}
	if !ok {
		return errors.New("resthook/redis: api key hash collision")
	}

	if err := s.setEntity(ctx, entityKey(prefixAPIKey, m.ID), m); err != nil {
		return fmt.Errorf("resthook/redis: create key: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, zKeyTenant+m.TenantID, goredis.Z{
		Score:  scoreFromTime(m.CreatedAt),
		Member: m.ID,
	}).Err(); err != nil {
		return fmt.Errorf("resthook/redis: create key tenant index: %w", err)
	}
	return nil
}

func (s *Store) getKeyModel(ctx context.Context, keyID string) (*apiKeyModel, error) {
	var m apiKeyModel
	if err := s.getEntity(ctx, entityKey(prefixAPIKey, keyID), &m); err != nil {
		if isNotFound(err) {
			return nil, resthook.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("resthook/redis: get key: %w", err)
	}
	return &m, nil
}

func (s *Store) GetKey(ctx context.Context, keyID id.ID) (*apikey.Key, error) {
	m, err := s.getKeyModel(ctx, keyID.String())
	if err != nil {
		return nil, err
	}
	return fromAPIKeyModel(m)
}

func (s *Store) GetKeyByHash(ctx context.Context, hash string) (*apikey.Key, error) {
	keyID, err := s.rdb.Get(ctx, uniqueKeyHash+hash).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, resthook.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("resthook/redis: get key by hash: %w", err)
	}

	m, err := s.getKeyModel(ctx, keyID)
	if err != nil {
		return nil, err
	}
	return fromAPIKeyModel(m)
}

func (s *Store) ListKeys(ctx context.Context, tenantID string) ([]*apikey.Key, error) {
	ids, err := s.rdb.ZRevRange(ctx, zKeyTenant+tenantID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("resthook/redis: list keys: %w", err)
	}

	result := make([]*apikey.Key, 0, len(ids))
	for _, keyID := range ids {
		m, err := s.getKeyModel(ctx, keyID)
		if err != nil {
			if errors.Is(err, resthook.ErrAPIKeyNotFound) {
				continue
			}
			return nil, err
		}
		k, err := fromAPIKeyModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, k)
	}
	return result, nil
}

func (s *Store) RevokeKey(ctx context.Context, keyID id.ID, tenantID string, at time.Time) error {
	m, err := s.getKeyModel(ctx, keyID.String())
	if err != nil {
		return err
	}
	if m.TenantID != tenantID {
		return resthook.ErrAPIKeyNotFound
	}

	m.Active = false
	if m.RevokedAt == nil {
		m.RevokedAt = &at
	}
	m.UpdatedAt = now()
	return s.setEntity(ctx, entityKey(prefixAPIKey, m.ID), m)
}

func (s *Store) TouchKey(ctx context.Context, keyID id.ID, at time.Time) error {
	m, err := s.getKeyModel(ctx, keyID.String())
	if err != nil {
		return err
	}
	m.LastUsedAt = &at
	return s.setEntity(ctx, entityKey(prefixAPIKey, m.ID), m)
}
