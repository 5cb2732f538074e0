package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
)

// jobModel is the JSON representation stored in Redis.
type jobModel struct {
	ID             string          `json:"id"`
	EventID        string          `json:"event_id"`
	SubscriptionID string          `json:"subscription_id"`
	TenantID       string          `json:"tenant_id"`
	EventType      string          `json:"event_type"`
	TargetURL      string          `json:"target_url"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"max_attempts"`
	State          string          `json:"state"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	LastError      string          `json:"last_error"`
	LastStatusCode int             `json:"last_status_code"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toJobModel(j *delivery.Job) *jobModel {
	return &jobModel{
		ID:             j.ID.String(),
		EventID:        j.EventID.String(),
		SubscriptionID: j.SubscriptionID.String(),
		TenantID:       j.TenantID,
		EventType:      string(j.EventType),
		TargetURL:      j.TargetURL,
		Payload:        j.Payload,
		Attempt:        j.Attempt,
		MaxAttempts:    j.MaxAttempts,
		State:          string(j.State),
		NextAttemptAt:  j.NextAttemptAt,
		LeaseExpiresAt: j.LeaseExpiresAt,
		LastError:      j.LastError,
		LastStatusCode: j.LastStatusCode,
		CompletedAt:    j.CompletedAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*delivery.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID %q: %w", m.ID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &delivery.Job{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             jobID,
		EventID:        evtID,
		SubscriptionID: subID,
		TenantID:       m.TenantID,
		EventType:      catalog.EventType(m.EventType),
		TargetURL:      m.TargetURL,
		Payload:        m.Payload,
		Attempt:        m.Attempt,
		MaxAttempts:    m.MaxAttempts,
		State:          delivery.State(m.State),
		NextAttemptAt:  m.NextAttemptAt,
		LeaseExpiresAt: m.LeaseExpiresAt,
		LastError:      m.LastError,
		LastStatusCode: m.LastStatusCode,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// dequeueScript atomically claims due jobs and jobs whose lease expired,
// moving them from the queue to the lease set.
// KEYS[1] = resthook:z:job:queue
// KEYS[2] = resthook:z:job:lease
// ARGV[1] = current unix timestamp (score threshold)
// ARGV[2] = limit
// ARGV[3] = lease expiry score
var dequeueScript = goredis.NewScript(`
local limit = tonumber(ARGV[2])
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, limit)
if #ids < limit then
    local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, limit - #ids)
    for _, id in ipairs(expired) do
        table.insert(ids, id)
    end
end
for _, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    redis.call('ZADD', KEYS[2], ARGV[3], id)
end
return ids
`)

func (s *Store) Enqueue(ctx context.Context, j *delivery.Job) error {
	m := toJobModel(j)
	key := entityKey(prefixJob, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("resthook/redis: enqueue job: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zJobQueue, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
	pipe.ZAdd(ctx, zJobEvent+m.EventID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("resthook/redis: enqueue job indexes: %w", err)
	}
	return nil
}

func (s *Store) Dequeue(ctx context.Context, limit int, lease time.Duration) ([]*delivery.Job, error) {
	t := now()
	leaseUntil := t.Add(lease)

	claimed, err := dequeueScript.Run(ctx, s.rdb,
		[]string{zJobQueue, zJobLease},
		scoreArg(scoreFromTime(t)), limit, scoreArg(scoreFromTime(leaseUntil)),
	).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("resthook/redis: dequeue script: %w", err)
	}

	jobs := make([]*delivery.Job, 0, len(claimed))
	for _, jobID := range claimed {
		key := entityKey(prefixJob, jobID)
		var m jobModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isNotFound(err) {
				s.rdb.ZRem(ctx, zJobLease, jobID)
				continue
			}
			return nil, fmt.Errorf("resthook/redis: dequeue get: %w", err)
		}

		m.State = string(delivery.StateInFlight)
		m.LeaseExpiresAt = &leaseUntil
		m.UpdatedAt = t
		if err := s.setEntity(ctx, key, &m); err != nil {
			return nil, fmt.Errorf("resthook/redis: dequeue update: %w", err)
		}

		j, err := fromJobModel(&m)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}

	return jobs, nil
}

func (s *Store) UpdateJob(ctx context.Context, j *delivery.Job) error {
	key := entityKey(prefixJob, j.ID.String())

	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("resthook/redis: update job: %w", err)
	}
	if n == 0 {
		return resthook.ErrJobNotFound
	}

	m := toJobModel(j)
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("resthook/redis: update job: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZRem(ctx, zJobLease, m.ID)
	switch {
	case j.State == delivery.StateQueued:
		pipe.ZRem(ctx, zJobDone, m.ID)
		pipe.ZAdd(ctx, zJobQueue, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
	case j.Terminal():
		completed := m.UpdatedAt
		if m.CompletedAt != nil {
			completed = *m.CompletedAt
		}
		pipe.ZAdd(ctx, zJobDone, goredis.Z{Score: scoreFromTime(completed), Member: m.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("resthook/redis: update job indexes: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*delivery.Job, error) {
	var m jobModel
	if err := s.getEntity(ctx, entityKey(prefixJob, jobID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, resthook.ErrJobNotFound
		}
		return nil, fmt.Errorf("resthook/redis: get job: %w", err)
	}
	return fromJobModel(&m)
}

func (s *Store) ListJobsByEvent(ctx context.Context, eventID id.ID) ([]*delivery.Job, error) {
	ids, err := s.rdb.ZRange(ctx, zJobEvent+eventID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("resthook/redis: list jobs by event: %w", err)
	}

	result := make([]*delivery.Job, 0, len(ids))
	for _, jobID := range ids {
		var m jobModel
		if err := s.getEntity(ctx, entityKey(prefixJob, jobID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("resthook/redis: list jobs by event: %w", err)
		}
		j, err := fromJobModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	pipe := s.rdb.Pipeline()
	queued := pipe.ZCard(ctx, zJobQueue)
	leased := pipe.ZCard(ctx, zJobLease)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("resthook/redis: count pending: %w", err)
	}
	return queued.Val() + leased.Val(), nil
}

func (s *Store) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zJobDone, math.Inf(-1), scoreFromTime(before))
	if err != nil {
		return 0, fmt.Errorf("resthook/redis: prune jobs: %w", err)
	}

	var count int64
	for _, jobID := range ids {
		key := entityKey(prefixJob, jobID)
		var m jobModel
		if err := s.getEntity(ctx, key, &m); err != nil && !isNotFound(err) {
			return count, fmt.Errorf("resthook/redis: prune get: %w", err)
		}

		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, zJobDone, jobID)
		if m.EventID != "" {
			pipe.ZRem(ctx, zJobEvent+m.EventID, jobID)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return count, fmt.Errorf("resthook/redis: prune job: %w", err)
		}
		count++
	}
	return count, nil
}
