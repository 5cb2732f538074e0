// Package delivery is the durable delivery queue and the worker pool that
// drains it.
//
// A Job is one event bound for one subscription. Workers claim due jobs
// with a lease, POST the payload, log the attempt and either finish the job
// or put it back in the queue with a later NextAttemptAt. A worker never
// sleeps through a retry delay.
package delivery

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
)

// ErrJobNotFound is returned when a job does not exist.
var ErrJobNotFound = errors.New("resthook: delivery job not found")

// State is the lifecycle state of a job.
type State string

const (
	// StateQueued jobs wait for NextAttemptAt. A job scheduled for retry is
	// queued with a future NextAttemptAt.
	StateQueued State = "queued"

	// StateInFlight jobs are held by a worker until LeaseExpiresAt.
	StateInFlight State = "in_flight"

	// StateSucceeded is terminal: the receiver answered 2xx.
	StateSucceeded State = "succeeded"

	// StateFailed is terminal: attempts ran out or the receiver answered 410.
	StateFailed State = "failed"
)

// Job is one pending or finished delivery.
type Job struct {
	entity.Entity

	ID             id.ID             `json:"id"`
	EventID        id.ID             `json:"event_id"`
	SubscriptionID id.ID             `json:"subscription_id"`
	TenantID       string            `json:"tenant_id"`
	EventType      catalog.EventType `json:"event_type"`

	// TargetURL and Payload are snapshots taken at enqueue time.
	TargetURL string          `json:"target_url"`
	Payload   json.RawMessage `json:"payload"`

	// Attempt is the number of the next (or current) attempt, starting at 1.
	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"max_attempts"`

	State          State      `json:"state"`
	NextAttemptAt  time.Time  `json:"next_attempt_at"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`

	LastError      string     `json:"last_error,omitempty"`
	LastStatusCode int        `json:"last_status_code,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// DeliveryKey identifies the delivery across retries so receivers can
// discard duplicates.
func (j *Job) DeliveryKey() string {
	return j.SubscriptionID.String() + "." + j.EventID.String()
}

// Terminal reports whether the job will not be attempted again.
func (j *Job) Terminal() bool {
	return j.State == StateSucceeded || j.State == StateFailed
}

// Claimable reports whether a worker may claim the job at now: it is due,
// or its previous holder's lease ran out.
func (j *Job) Claimable(now time.Time) bool {
	switch j.State {
	case StateQueued:
		return !j.NextAttemptAt.After(now)
	case StateInFlight:
		return j.LeaseExpiresAt == nil || !j.LeaseExpiresAt.After(now)
	default:
		return false
	}
}
