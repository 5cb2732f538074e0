// Package memory provides an in-memory Store implementation for unit
// testing and single-process development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/id"
	rhstore "github.com/xraph/resthook/store"
	"github.com/xraph/resthook/subscription"
)

// compile-time interface check.
var _ rhstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store. Records are copied
// on the way in and out so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	keys         map[string]*apikey.Key                // keyed by ID string
	keysByHash   map[string]string                     // hash -> key ID
	subs         map[string]*subscription.Subscription // keyed by ID string
	subsByTriple map[string]string                     // tenant|event|url -> subscription ID
	jobs         map[string]*delivery.Job              // keyed by ID string
	entries      map[string]*deliverylog.Entry         // keyed by ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		keys:         make(map[string]*apikey.Key),
		keysByHash:   make(map[string]string),
		subs:         make(map[string]*subscription.Subscription),
		subsByTriple: make(map[string]string),
		jobs:         make(map[string]*delivery.Job),
		entries:      make(map[string]*deliverylog.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return resthook.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed. Later writes fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// apikey.Store
// ──────────────────────────────────────────────────

// CreateKey persists a new key.
func (s *Store) CreateKey(_ context.Context, k *apikey.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return resthook.ErrStoreClosed
	}

	cp := *k
	s.keys[k.ID.String()] = &cp
	s.keysByHash[k.Hash] = k.ID.String()
	return nil
}

// GetKey returns a key by ID.
func (s *Store) GetKey(_ context.Context, keyID id.ID) (*apikey.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[keyID.String()]
	if !ok {
		return nil, resthook.ErrAPIKeyNotFound
	}
	cp := *k
	return &cp, nil
}

// GetKeyByHash returns the key stored under hash.
func (s *Store) GetKeyByHash(_ context.Context, hash string) (*apikey.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keyID, ok := s.keysByHash[hash]
	if !ok {
		return nil, resthook.ErrAPIKeyNotFound
	}
	cp := *s.keys[keyID]
	return &cp, nil
}

// ListKeys returns the tenant's keys, newest first.
func (s *Store) ListKeys(_ context.Context, tenantID string) ([]*apikey.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*apikey.Key, 0)
	for _, k := range s.keys {
		if k.TenantID != tenantID {
			continue
		}
		cp := *k
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return newer(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})
	return result, nil
}

// RevokeKey deactivates a key owned by tenantID.
func (s *Store) RevokeKey(_ context.Context, keyID id.ID, tenantID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[keyID.String()]
	if !ok || k.TenantID != tenantID {
		return resthook.ErrAPIKeyNotFound
	}
	if k.RevokedAt != nil {
		return nil
	}

	k.Active = false
	k.RevokedAt = &at
	k.UpdatedAt = at
	return nil
}

// TouchKey records a successful authentication.
func (s *Store) TouchKey(_ context.Context, keyID id.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[keyID.String()]
	if !ok {
		return resthook.ErrAPIKeyNotFound
	}
	k.LastUsedAt = &at
	return nil
}

// ──────────────────────────────────────────────────
// subscription.Store
// ──────────────────────────────────────────────────

func tripleKey(tenantID string, eventType catalog.EventType, targetURL string) string {
	return tenantID + "|" + string(eventType) + "|" + targetURL
}

// UpsertSubscription inserts sub or reactivates the row with the same triple.
func (s *Store) UpsertSubscription(_ context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, resthook.ErrStoreClosed
	}

	key := tripleKey(sub.TenantID, sub.EventType, sub.TargetURL)
	if existingID, ok := s.subsByTriple[key]; ok {
		existing := s.subs[existingID]
		existing.Active = true
		existing.UpdatedAt = time.Now().UTC()
		cp := *existing
		return &cp, nil
	}

	cp := *sub
	s.subs[sub.ID.String()] = &cp
	s.subsByTriple[key] = sub.ID.String()

	out := cp
	return &out, nil
}

// GetSubscription returns a subscription by ID.
func (s *Store) GetSubscription(_ context.Context, subID id.ID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[subID.String()]
	if !ok {
		return nil, resthook.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

// ListSubscriptions returns a tenant's subscriptions, newest first.
func (s *Store) ListSubscriptions(_ context.Context, tenantID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subs {
		if sub.TenantID != tenantID {
			continue
		}
		if opts.EventType != nil && sub.EventType != *opts.EventType {
			continue
		}
		if opts.Active != nil && sub.Active != *opts.Active {
			continue
		}
		cp := *sub
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return newer(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListActive returns the tenant's active subscriptions, oldest first.
func (s *Store) ListActive(_ context.Context, tenantID string, eventType *catalog.EventType) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subs {
		if !sub.Active || sub.TenantID != tenantID {
			continue
		}
		if eventType != nil && sub.EventType != *eventType {
			continue
		}
		cp := *sub
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return newer(result[j].CreatedAt, result[j].ID, result[i].CreatedAt, result[i].ID)
	})
	return result, nil
}

// Deactivate marks matching active subscriptions inactive.
func (s *Store) Deactivate(_ context.Context, tenantID, targetURL string, eventType *catalog.EventType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var n int64
	for _, sub := range s.subs {
		if !sub.Active || sub.TenantID != tenantID || sub.TargetURL != targetURL {
			continue
		}
		if eventType != nil && sub.EventType != *eventType {
			continue
		}
		sub.Active = false
		sub.UpdatedAt = now
		n++
	}
	return n, nil
}

// RecordSuccess stamps the last delivery time and clears failure state.
func (s *Store) RecordSuccess(_ context.Context, subID id.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[subID.String()]
	if !ok {
		return resthook.ErrSubscriptionNotFound
	}
	sub.LastTriggeredAt = &at
	sub.LastError = ""
	sub.FailureCount = 0
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordFailure increments the failure counter and stores errText.
func (s *Store) RecordFailure(_ context.Context, subID id.ID, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[subID.String()]
	if !ok {
		return resthook.ErrSubscriptionNotFound
	}
	sub.FailureCount++
	sub.LastError = errText
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

// CountSubscriptions returns total and active counts for a tenant.
func (s *Store) CountSubscriptions(_ context.Context, tenantID string) (subscription.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c subscription.Counts
	for _, sub := range s.subs {
		if sub.TenantID != tenantID {
			continue
		}
		c.Total++
		if sub.Active {
			c.Active++
		}
	}
	return c, nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// Enqueue persists a queued job.
func (s *Store) Enqueue(_ context.Context, j *delivery.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return resthook.ErrStoreClosed
	}

	cp := *j
	s.jobs[j.ID.String()] = &cp
	return nil
}

// Dequeue claims due jobs and jobs whose lease expired, oldest first.
func (s *Store) Dequeue(_ context.Context, limit int, lease time.Duration) ([]*delivery.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	candidates := make([]*delivery.Job, 0)
	for _, j := range s.jobs {
		if j.Claimable(now) {
			candidates = append(candidates, j)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextAttemptAt.Before(candidates[j].NextAttemptAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	leaseUntil := now.Add(lease)
	result := make([]*delivery.Job, 0, len(candidates))
	for _, j := range candidates {
		j.State = delivery.StateInFlight
		j.LeaseExpiresAt = &leaseUntil
		j.UpdatedAt = now
		cp := *j
		result = append(result, &cp)
	}

	return result, nil
}

// UpdateJob writes back a job after an attempt.
func (s *Store) UpdateJob(_ context.Context, j *delivery.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID.String()]; !ok {
		return resthook.ErrJobNotFound
	}
	cp := *j
	s.jobs[j.ID.String()] = &cp
	return nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(_ context.Context, jobID id.ID) (*delivery.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, resthook.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// ListJobsByEvent returns the jobs one trigger call produced.
func (s *Store) ListJobsByEvent(_ context.Context, eventID id.ID) ([]*delivery.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Job, 0)
	for _, j := range s.jobs {
		if j.EventID.String() != eventID.String() {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// CountPending returns the number of queued and in-flight jobs.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, j := range s.jobs {
		if !j.Terminal() {
			count++
		}
	}
	return count, nil
}

// PruneJobs deletes terminal jobs completed before before.
func (s *Store) PruneJobs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, j := range s.jobs {
		if j.Terminal() && j.CompletedAt != nil && j.CompletedAt.Before(before) {
			delete(s.jobs, key)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// deliverylog.Store
// ──────────────────────────────────────────────────

// CreateEntry persists a pending entry.
func (s *Store) CreateEntry(_ context.Context, e *deliverylog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.entries[e.ID.String()] = &cp
	return nil
}

// CompleteEntry writes the outcome of an attempt.
func (s *Store) CompleteEntry(_ context.Context, e *deliverylog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[e.ID.String()]
	if !ok {
		return resthook.ErrLogEntryNotFound
	}

	existing.Status = e.Status
	existing.StatusCode = e.StatusCode
	existing.ResponseBody = e.ResponseBody
	existing.Error = e.Error
	existing.LatencyMs = e.LatencyMs
	existing.CompletedAt = e.CompletedAt
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

// GetEntry returns an entry by ID.
func (s *Store) GetEntry(_ context.Context, entryID id.ID) (*deliverylog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[entryID.String()]
	if !ok {
		return nil, resthook.ErrLogEntryNotFound
	}
	cp := *e
	return &cp, nil
}

// ListByJob returns a job's entries in attempt order.
func (s *Store) ListByJob(_ context.Context, jobID id.ID) ([]*deliverylog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*deliverylog.Entry, 0)
	for _, e := range s.entries {
		if e.JobID.String() != jobID.String() {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Attempt != result[j].Attempt {
			return result[i].Attempt < result[j].Attempt
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// ListBySubscription returns a subscription's entries, newest first.
func (s *Store) ListBySubscription(_ context.Context, subID id.ID, opts deliverylog.ListOpts) ([]*deliverylog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*deliverylog.Entry, 0)
	for _, e := range s.entries {
		if e.SubscriptionID.String() != subID.String() {
			continue
		}
		if opts.Status != nil && e.Status != *opts.Status {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return newer(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListRecentByTenant returns the tenant's newest entries.
func (s *Store) ListRecentByTenant(_ context.Context, tenantID string, limit int) ([]*deliverylog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*deliverylog.Entry, 0)
	for _, e := range s.entries {
		if e.TenantID != tenantID {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return newer(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})

	return applyPagination(result, 0, limit), nil
}

// CountEntries counts the tenant's entries by outcome.
func (s *Store) CountEntries(_ context.Context, tenantID string) (deliverylog.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c deliverylog.Counts
	for _, e := range s.entries {
		if e.TenantID != tenantID {
			continue
		}
		c.Total++
		switch e.Status {
		case deliverylog.StatusSuccess:
			c.Success++
		case deliverylog.StatusFailed:
			c.Failed++
		}
	}
	return c, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// newer orders by creation time, then by ID, both descending. TypeIDs are
// time ordered so the ID breaks ties within one clock tick.
func newer(at time.Time, aID id.ID, bt time.Time, bID id.ID) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return aID.String() > bID.String()
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) && offset > 0 {
		return []*T{}
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
