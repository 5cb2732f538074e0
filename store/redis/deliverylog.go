package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
)

// entryModel is the JSON representation stored in Redis.
type entryModel struct {
	ID             string          `json:"id"`
	JobID          string          `json:"job_id"`
	SubscriptionID string          `json:"subscription_id"`
	TenantID       string          `json:"tenant_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Attempt        int             `json:"attempt"`
	Status         string          `json:"status"`
	StatusCode     int             `json:"status_code"`
	ResponseBody   string          `json:"response_body"`
	Error          string          `json:"error"`
	LatencyMs      int             `json:"latency_ms"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toEntryModel(e *deliverylog.Entry) *entryModel {
	return &entryModel{
		ID:             e.ID.String(),
		JobID:          e.JobID.String(),
		SubscriptionID: e.SubscriptionID.String(),
		TenantID:       e.TenantID,
		EventType:      string(e.EventType),
		Payload:        e.Payload,
		Attempt:        e.Attempt,
		Status:         string(e.Status),
		StatusCode:     e.StatusCode,
		ResponseBody:   e.ResponseBody,
		Error:          e.Error,
		LatencyMs:      e.LatencyMs,
		CompletedAt:    e.CompletedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromEntryModel(m *entryModel) (*deliverylog.Entry, error) {
	entryID, err := id.ParseLogEntryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse log entry ID %q: %w", m.ID, err)
	}
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID %q: %w", m.JobID, err)
	}
	subID, err := id.ParseSubscriptionID(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &deliverylog.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             entryID,
		JobID:          jobID,
		SubscriptionID: subID,
		TenantID:       m.TenantID,
		EventType:      catalog.EventType(m.EventType),
		Payload:        m.Payload,
		Attempt:        m.Attempt,
		Status:         deliverylog.Status(m.Status),
		StatusCode:     m.StatusCode,
		ResponseBody:   m.ResponseBody,
		Error:          m.Error,
		LatencyMs:      m.LatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// Per-tenant counter fields in hLogCounters.
const (
	counterTotal   = "total"
	counterSuccess = "success"
	counterFailed  = "failed"
)

func (s *Store) CreateEntry(ctx context.Context, e *deliverylog.Entry) error {
	m := toEntryModel(e)
	if err := s.setEntity(ctx, entityKey(prefixLogEntry, m.ID), m); err != nil {
		return fmt.Errorf("resthook/redis: create entry: %w", err)
	}

	created := scoreFromTime(m.CreatedAt)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zLogJob+m.JobID, goredis.Z{Score: float64(m.Attempt), Member: m.ID})
	pipe.ZAdd(ctx, zLogSub+m.SubscriptionID, goredis.Z{Score: created, Member: m.ID})
	pipe.ZAdd(ctx, zLogTenant+m.TenantID, goredis.Z{Score: created, Member: m.ID})
	pipe.HIncrBy(ctx, hLogCounters+m.TenantID, counterTotal, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("resthook/redis: create entry indexes: %w", err)
	}
	return nil
}

func (s *Store) getEntryModel(ctx context.Context, entryID string) (*entryModel, error) {
	var m entryModel
	if err := s.getEntity(ctx, entityKey(prefixLogEntry, entryID), &m); err != nil {
		if isNotFound(err) {
			return nil, resthook.ErrLogEntryNotFound
		}
		return nil, fmt.Errorf("resthook/redis: get entry: %w", err)
	}
	return &m, nil
}

func (s *Store) CompleteEntry(ctx context.Context, e *deliverylog.Entry) error {
	m, err := s.getEntryModel(ctx, e.ID.String())
	if err != nil {
		return err
	}
	wasPending := m.Status == string(deliverylog.StatusPending)

	m.Status = string(e.Status)
	m.StatusCode = e.StatusCode
	m.ResponseBody = e.ResponseBody
	m.Error = e.Error
	m.LatencyMs = e.LatencyMs
	m.CompletedAt = e.CompletedAt
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, entityKey(prefixLogEntry, m.ID), m); err != nil {
		return fmt.Errorf("resthook/redis: complete entry: %w", err)
	}

	if wasPending {
		field := ""
		switch e.Status {
		case deliverylog.StatusSuccess:
			field = counterSuccess
		case deliverylog.StatusFailed:
			field = counterFailed
		}
		if field != "" {
			if err := s.rdb.HIncrBy(ctx, hLogCounters+m.TenantID, field, 1).Err(); err != nil {
				return fmt.Errorf("resthook/redis: entry counters: %w", err)
			}
		}
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.ID) (*deliverylog.Entry, error) {
	m, err := s.getEntryModel(ctx, entryID.String())
	if err != nil {
		return nil, err
	}
	return fromEntryModel(m)
}

// loadEntries resolves IDs in order, skipping any whose document is gone.
func (s *Store) loadEntries(ctx context.Context, ids []string, status *deliverylog.Status) ([]*deliverylog.Entry, error) {
	result := make([]*deliverylog.Entry, 0, len(ids))
	for _, entryID := range ids {
		m, err := s.getEntryModel(ctx, entryID)
		if err != nil {
			if errors.Is(err, resthook.ErrLogEntryNotFound) {
				continue
			}
			return nil, err
		}
		if status != nil && m.Status != string(*status) {
			continue
		}
		e, err := fromEntryModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

func (s *Store) ListByJob(ctx context.Context, jobID id.ID) ([]*deliverylog.Entry, error) {
	ids, err := s.rdb.ZRange(ctx, zLogJob+jobID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("resthook/redis: list entries by job: %w", err)
	}
	return s.loadEntries(ctx, ids, nil)
}

func (s *Store) ListBySubscription(ctx context.Context, subID id.ID, opts deliverylog.ListOpts) ([]*deliverylog.Entry, error) {
	ids, err := s.rdb.ZRevRange(ctx, zLogSub+subID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("resthook/redis: list entries by subscription: %w", err)
	}

	result, err := s.loadEntries(ctx, ids, opts.Status)
	if err != nil {
		return nil, err
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListRecentByTenant(ctx context.Context, tenantID string, limit int) ([]*deliverylog.Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.rdb.ZRevRange(ctx, zLogTenant+tenantID, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("resthook/redis: list recent entries: %w", err)
	}
	return s.loadEntries(ctx, ids, nil)
}

func (s *Store) CountEntries(ctx context.Context, tenantID string) (deliverylog.Counts, error) {
	vals, err := s.rdb.HMGet(ctx, hLogCounters+tenantID, counterTotal, counterSuccess, counterFailed).Result()
	if err != nil {
		return deliverylog.Counts{}, fmt.Errorf("resthook/redis: count entries: %w", err)
	}

	return deliverylog.Counts{
		Total:   counterValue(vals[0]),
		Success: counterValue(vals[1]),
		Failed:  counterValue(vals[2]),
	}, nil
}

// counterValue reads one HMGET slot; missing fields come back nil.
func counterValue(v any) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	_, _ = fmt.Sscan(str, &n)
	return n
}
