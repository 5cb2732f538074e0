// Package deliverylog is the audit trail of delivery attempts: one entry per
// attempt, written as pending before the request and completed after it.
package deliverylog

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
)

// ErrEntryNotFound is returned when a log entry does not exist.
var ErrEntryNotFound = errors.New("resthook: delivery log entry not found")

// Status is the outcome of an attempt.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Entry records one delivery attempt.
type Entry struct {
	entity.Entity

	ID             id.ID             `json:"id"`
	JobID          id.ID             `json:"job_id"`
	SubscriptionID id.ID             `json:"subscription_id"`
	TenantID       string            `json:"tenant_id"`
	EventType      catalog.EventType `json:"event_type"`
	Payload        json.RawMessage   `json:"payload"`
	Attempt        int               `json:"attempt"`
	Status         Status            `json:"status"`
	StatusCode     int               `json:"status_code,omitempty"`
	ResponseBody   string            `json:"response_body,omitempty"`
	Error          string            `json:"error,omitempty"`
	LatencyMs      int               `json:"latency_ms"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// ListOpts configures filtering and pagination.
type ListOpts struct {
	Offset int
	Limit  int
	Status *Status
}

// Counts summarises a tenant's entries.
type Counts struct {
	Total   int64
	Success int64
	Failed  int64
}
