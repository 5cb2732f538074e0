package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/id"
)

// Enqueue persists a queued job.
func (s *Store) Enqueue(ctx context.Context, j *delivery.Job) error {
	if _, err := s.mdb.NewInsert(toJobModel(j)).Exec(ctx); err != nil {
		return fmt.Errorf("resthook/mongo: enqueue: %w", err)
	}
	return nil
}

// Dequeue claims due jobs one document at a time with FindOneAndUpdate, so
// two workers can never claim the same job.
func (s *Store) Dequeue(ctx context.Context, limit int, lease time.Duration) ([]*delivery.Job, error) {
	result := make([]*delivery.Job, 0, limit)
	t := now()
	col := s.mdb.Collection(colJobs)

	filter := bson.M{
		"$or": bson.A{
			bson.M{
				"state":           string(delivery.StateQueued),
				"next_attempt_at": bson.M{"$lte": t},
			},
			bson.M{
				"state":            string(delivery.StateInFlight),
				"lease_expires_at": bson.M{"$lte": t},
			},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"state":            string(delivery.StateInFlight),
			"lease_expires_at": t.Add(lease),
			"updated_at":       t,
		},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}})

	for range limit {
		var m jobModel

		err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if err != nil {
			if errors.Is(err, mongod.ErrNoDocuments) {
				break
			}

			return nil, fmt.Errorf("resthook/mongo: dequeue: %w", err)
		}

		j, err := fromJobModel(&m)
		if err != nil {
			return nil, err
		}

		result = append(result, j)
	}

	return result, nil
}

// UpdateJob writes back a job after an attempt.
func (s *Store) UpdateJob(ctx context.Context, j *delivery.Job) error {
	m := toJobModel(j)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("resthook/mongo: update job: %w", err)
	}

	if res.MatchedCount() == 0 {
		return resthook.ErrJobNotFound
	}

	return nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*delivery.Job, error) {
	var m jobModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": jobID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, resthook.ErrJobNotFound
		}

		return nil, fmt.Errorf("resthook/mongo: get job: %w", err)
	}

	return fromJobModel(&m)
}

// ListJobsByEvent returns the jobs one trigger call produced.
func (s *Store) ListJobsByEvent(ctx context.Context, eventID id.ID) ([]*delivery.Job, error) {
	var models []jobModel

	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"event_id": eventID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("resthook/mongo: list jobs by event: %w", err)
	}

	result := make([]*delivery.Job, 0, len(models))

	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, j)
	}

	return result, nil
}

// CountPending returns the number of queued and in-flight jobs.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*jobModel)(nil)).
		Filter(bson.M{"state": bson.M{"$in": bson.A{
			string(delivery.StateQueued),
			string(delivery.StateInFlight),
		}}}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("resthook/mongo: count pending: %w", err)
	}

	return count, nil
}

// PruneJobs deletes terminal jobs completed before before.
func (s *Store) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*jobModel)(nil)).
		Many().
		Filter(bson.M{
			"state": bson.M{"$in": bson.A{
				string(delivery.StateSucceeded),
				string(delivery.StateFailed),
			}},
			"completed_at": bson.M{"$lt": before},
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("resthook/mongo: prune jobs: %w", err)
	}

	return res.DeletedCount(), nil
}
