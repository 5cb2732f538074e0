// Package redis implements store.Store on Redis through Grove KV.
//
// Entities are JSON documents under their own key. Sorted sets and sets act
// as secondary indexes, and Lua scripts make the multi-key transitions
// (queue claims, failure counters) atomic.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	rhstore "github.com/xraph/resthook/store"
)

// compile-time interface check
var _ rhstore.Store = (*Store)(nil)

// Store implements store.Store using Redis via Grove KV.
type Store struct {
	kv  *kv.Store
	rdb goredis.UniversalClient
}

// New creates a new Redis store backed by Grove KV.
func New(store *kv.Store) *Store {
	return &Store{
		kv:  store,
		rdb: redisdriver.UnwrapClient(store),
	}
}

// NewFromClient creates a store that talks to rdb directly, for callers
// that hold a go-redis client rather than a Grove KV store.
func NewFromClient(rdb goredis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Migrate is a no-op for Redis (no schema migrations needed).
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.kv == nil {
		return s.rdb.Ping(ctx).Err()
	}
	return s.kv.Ping(ctx)
}

// Close closes the KV store.
func (s *Store) Close() error {
	if s.kv == nil {
		return s.rdb.Close()
	}
	return s.kv.Close()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// scoreFromTime converts a time.Time to a sorted set score (unix seconds as float64).
func scoreFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// scoreArg formats a score for Lua and ZRANGEBYSCORE arguments.
func scoreArg(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// isNotFound checks if an error is a KV not-found sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// getEntity retrieves and decodes a JSON entity from a KV key.
func (s *Store) getEntity(ctx context.Context, key string, dest any) error {
	var raw []byte
	var err error
	if s.kv == nil {
		raw, err = s.rdb.Get(ctx, key).Bytes()
		if isRedisNil(err) {
			err = kv.ErrNotFound
		}
	} else {
		raw, err = s.kv.GetRaw(ctx, key)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// setEntity encodes and stores a JSON entity under a KV key.
func (s *Store) setEntity(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("resthook/redis: marshal entity: %w", err)
	}
	if s.kv == nil {
		return s.rdb.Set(ctx, key, raw, 0).Err()
	}
	return s.kv.SetRaw(ctx, key, raw)
}

// zRangeByScoreIDs returns all member IDs from a sorted set within a score range.
func (s *Store) zRangeByScoreIDs(ctx context.Context, key string, lo, hi float64) ([]string, error) {
	minStr := "-inf"
	maxStr := "+inf"
	if !math.IsInf(lo, -1) {
		minStr = scoreArg(lo)
	}
	if !math.IsInf(hi, 1) {
		maxStr = scoreArg(hi)
	}
	return s.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: minStr,
		Max: maxStr,
	}).Result()
}

// applyPagination applies offset and limit to a slice.
func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset > 0 && offset >= len(items) {
		return []*T{}
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
