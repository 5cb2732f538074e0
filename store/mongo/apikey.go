package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/id"
)

func (s *Store) CreateKey(ctx context.Context, k *apikey.Key) error {
	if _, err := s.mdb.NewInsert(toAPIKeyModel(k)).Exec(ctx); err != nil {
		return fmt.Errorf("resthook/mongo: create key: %w", err)
	}
	return nil
}

func (s *Store) GetKey(ctx context.Context, keyID id.ID) (*apikey.Key, error) {
	return s.findKey(ctx, bson.M{"_id": keyID.String()})
}

func (s *Store) GetKeyByHash(ctx context.Context, hash string) (*apikey.Key, error) {
	return s.findKey(ctx, bson.M{"hash": hash})
}

func (s *Store) findKey(ctx context.Context, filter bson.M) (*apikey.Key, error) {
	var m apiKeyModel

	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, resthook.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("resthook/mongo: get key: %w", err)
	}

	return fromAPIKeyModel(&m)
}

func (s *Store) ListKeys(ctx context.Context, tenantID string) ([]*apikey.Key, error) {
	var models []apiKeyModel

	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"tenant_id": tenantID}).
		Sort(bson.D{{Key: "created_at", Value: -1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("resthook/mongo: list keys: %w", err)
	}

	result := make([]*apikey.Key, 0, len(models))
	for i := range models {
		k, err := fromAPIKeyModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, k)
	}
	return result, nil
}

func (s *Store) RevokeKey(ctx context.Context, keyID id.ID, tenantID string, at time.Time) error {
	col := s.mdb.Collection(colAPIKeys)

	// An already-revoked key keeps its original revocation time.
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": keyID.String(), "tenant_id": tenantID},
		bson.A{bson.M{"$set": bson.M{
			"active":     false,
			"revoked_at": bson.M{"$ifNull": bson.A{"$revoked_at", at}},
			"updated_at": now(),
		}}},
	)
	if err != nil {
		return fmt.Errorf("resthook/mongo: revoke key: %w", err)
	}
	if res.MatchedCount == 0 {
		return resthook.ErrAPIKeyNotFound
	}
	return nil
}

func (s *Store) TouchKey(ctx context.Context, keyID id.ID, at time.Time) error {
	res, err := s.mdb.NewUpdate((*apiKeyModel)(nil)).
		Filter(bson.M{"_id": keyID.String()}).
		Set("last_used_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("resthook/mongo: touch key: %w", err)
	}
	if res.MatchedCount() == 0 {
		return resthook.ErrAPIKeyNotFound
	}
	return nil
}
