package delivery

import (
	"context"
	"time"

	"github.com/xraph/resthook/id"
)

// Store defines the persistence contract for the delivery queue.
type Store interface {
	// Enqueue persists a queued job.
	Enqueue(ctx context.Context, j *Job) error

	// Dequeue claims up to limit claimable jobs, oldest NextAttemptAt first.
	// Claimed jobs move to in_flight with LeaseExpiresAt = now + lease.
	// Implementations must never hand the same job to two callers while
	// its lease is live.
	Dequeue(ctx context.Context, limit int, lease time.Duration) ([]*Job, error)

	// UpdateJob writes back a job after an attempt.
	UpdateJob(ctx context.Context, j *Job) error

	// GetJob returns a job by ID.
	GetJob(ctx context.Context, jobID id.ID) (*Job, error)

	// ListJobsByEvent returns the jobs one trigger call produced.
	ListJobsByEvent(ctx context.Context, eventID id.ID) ([]*Job, error)

	// CountPending returns the number of queued and in-flight jobs.
	CountPending(ctx context.Context) (int64, error)

	// PruneJobs deletes terminal jobs completed before before.
	PruneJobs(ctx context.Context, before time.Time) (int64, error)
}
