package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/id"
)

func (s *Store) CreateEntry(ctx context.Context, e *deliverylog.Entry) error {
	if _, err := s.mdb.NewInsert(toEntryModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("resthook/mongo: create entry: %w", err)
	}
	return nil
}

func (s *Store) CompleteEntry(ctx context.Context, e *deliverylog.Entry) error {
	res, err := s.mdb.NewUpdate((*entryModel)(nil)).
		Filter(bson.M{"_id": e.ID.String()}).
		Set("status", string(e.Status)).
		Set("status_code", e.StatusCode).
		Set("response_body", e.ResponseBody).
		Set("error", e.Error).
		Set("latency_ms", e.LatencyMs).
		Set("completed_at", e.CompletedAt).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("resthook/mongo: complete entry: %w", err)
	}
	if res.MatchedCount() == 0 {
		return resthook.ErrLogEntryNotFound
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.ID) (*deliverylog.Entry, error) {
	var m entryModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": entryID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, resthook.ErrLogEntryNotFound
		}
		return nil, fmt.Errorf("resthook/mongo: get entry: %w", err)
	}

	return fromEntryModel(&m)
}

func (s *Store) ListByJob(ctx context.Context, jobID id.ID) ([]*deliverylog.Entry, error) {
	var models []entryModel

	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"job_id": jobID.String()}).
		Sort(bson.D{{Key: "attempt", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("resthook/mongo: list entries by job: %w", err)
	}

	return entriesFromModels(models)
}

func (s *Store) ListBySubscription(ctx context.Context, subID id.ID, opts deliverylog.ListOpts) ([]*deliverylog.Entry, error) {
	var models []entryModel

	filter := bson.M{"subscription_id": subID.String()}
	if opts.Status != nil {
		filter["status"] = string(*opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("resthook/mongo: list entries by subscription: %w", err)
	}

	return entriesFromModels(models)
}

func (s *Store) ListRecentByTenant(ctx context.Context, tenantID string, limit int) ([]*deliverylog.Entry, error) {
	var models []entryModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"tenant_id": tenantID}).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("resthook/mongo: list recent entries: %w", err)
	}

	return entriesFromModels(models)
}

func (s *Store) CountEntries(ctx context.Context, tenantID string) (deliverylog.Counts, error) {
	var c deliverylog.Counts

	counts := []struct {
		dest   *int64
		filter bson.M
	}{
		{&c.Total, bson.M{"tenant_id": tenantID}},
		{&c.Success, bson.M{"tenant_id": tenantID, "status": string(deliverylog.StatusSuccess)}},
		{&c.Failed, bson.M{"tenant_id": tenantID, "status": string(deliverylog.StatusFailed)}},
	}

	for _, q := range counts {
		n, err := s.mdb.NewFind((*entryModel)(nil)).Filter(q.filter).Count(ctx)
		if err != nil {
			return deliverylog.Counts{}, fmt.Errorf("resthook/mongo: count entries: %w", err)
		}
		*q.dest = n
	}

	return c, nil
}

func entriesFromModels(models []entryModel) ([]*deliverylog.Entry, error) {
	result := make([]*deliverylog.Entry, 0, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}
