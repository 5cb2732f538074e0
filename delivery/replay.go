package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/resthook/id"
)

// ErrNotReplayable is returned when replaying a job that has not failed.
var ErrNotReplayable = errors.New("resthook: only failed jobs can be replayed")

// ReplayStore is the slice of the queue Replay needs.
type ReplayStore interface {
	GetJob(ctx context.Context, jobID id.ID) (*Job, error)
	UpdateJob(ctx context.Context, j *Job) error
}

// Replay puts a failed job back on the queue with a fresh budget of
// maxAttempts. It keeps the job's ID and event, so the delivery key is
// unchanged and receivers can still discard a duplicate. Attempt numbers
// continue from the last one so the log stays ordered.
func Replay(ctx context.Context, s ReplayStore, jobID id.ID, maxAttempts int) (*Job, error) {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.State != StateFailed {
		return nil, ErrNotReplayable
	}

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	j.State = StateQueued
	j.Attempt++
	j.MaxAttempts = j.Attempt + maxAttempts - 1
	j.NextAttemptAt = time.Now().UTC()
	j.LeaseExpiresAt = nil
	j.CompletedAt = nil
	j.Touch()

	if err := s.UpdateJob(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}
