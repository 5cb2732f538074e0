// Package postgres is the PostgreSQL backend of resthook, built on the Grove ORM.
// Open the database with pgdriver, wrap it with grove.Open and pass it to New;
// Migrate needs no further imports.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/id"
	rhstore "github.com/xraph/resthook/store"
	"github.com/xraph/resthook/subscription"
)

// compile-time interface check
var _ rhstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
// The pgmigrate executor is registered by this package's import of
// pgdriver/pgmigrate.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("resthook/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", resthook.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== API Key Store ====================

func (s *Store) CreateKey(ctx context.Context, k *apikey.Key) error {
	_, err := s.pg.NewInsert(toAPIKeyModel(k)).Exec(ctx)
	return err
}

func (s *Store) GetKey(ctx context.Context, keyID id.ID) (*apikey.Key, error) {
	m := new(apiKeyModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", keyID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, resthook.ErrAPIKeyNotFound
		}
		return nil, err
	}
	return fromAPIKeyModel(m)
}

func (s *Store) GetKeyByHash(ctx context.Context, hash string) (*apikey.Key, error) {
	m := new(apiKeyModel)
	err := s.pg.NewSelect(m).
		Where("hash = $1", hash).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, resthook.ErrAPIKeyNotFound
		}
		return nil, err
	}
	return fromAPIKeyModel(m)
}

func (s *Store) ListKeys(ctx context.Context, tenantID string) ([]*apikey.Key, error) {
	var models []apiKeyModel
	if err := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID).
		OrderExpr("created_at DESC, id DESC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*apikey.Key, len(models))
	for i := range models {
		k, err := fromAPIKeyModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = k
	}
	return result, nil
}

func (s *Store) RevokeKey(ctx context.Context, keyID id.ID, tenantID string, at time.Time) error {
	res, err := s.pg.NewUpdate((*apiKeyModel)(nil)).
		Set("active = false").
		Set("revoked_at = COALESCE(revoked_at, $1)", at).
		Set("updated_at = $2", now()).
		Where("id = $3", keyID.String()).
		Where("tenant_id = $4", tenantID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return resthook.ErrAPIKeyNotFound
	}
	return nil
}

func (s *Store) TouchKey(ctx context.Context, keyID id.ID, at time.Time) error {
	_, err := s.pg.NewUpdate((*apiKeyModel)(nil)).
		Set("last_used_at = $1", at).
		Where("id = $2", keyID.String()).
		Exec(ctx)
	return err
}

// ==================== Subscription Store ====================

// UpsertSubscription relies on the unique (tenant_id, event_type,
// target_url) constraint; RETURNING yields the surviving row either way.
func (s *Store) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	m := toSubscriptionModel(sub)

	var models []subscriptionModel
	err := s.pg.NewRaw(`
		INSERT INTO resthook_subscriptions
			(id, tenant_id, event_type, target_url, active, last_error, failure_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, '', 0, $5, $6)
		ON CONFLICT (tenant_id, event_type, target_url)
		DO UPDATE SET active = TRUE, updated_at = EXCLUDED.updated_at
		RETURNING *
	`, m.ID, m.TenantID, m.EventType, m.TargetURL, m.CreatedAt, m.UpdatedAt).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, resthook.ErrSubscriptionNotFound
	}
	return fromSubscriptionModel(&models[0])
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, resthook.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, tenantID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models).Where("tenant_id = $1", tenantID)
	argIdx := 2

	if opts.EventType != nil {
		q = q.Where(fmt.Sprintf("event_type = $%d", argIdx), string(*opts.EventType))
		argIdx++
	}
	if opts.Active != nil {
		q = q.Where(fmt.Sprintf("active = $%d", argIdx), *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return subscriptionsFromModels(models)
}

func (s *Store) ListActive(ctx context.Context, tenantID string, eventType *catalog.EventType) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID).
		Where("active = true")
	if eventType != nil {
		q = q.Where("event_type = $2", string(*eventType))
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return subscriptionsFromModels(models)
}

func (s *Store) Deactivate(ctx context.Context, tenantID, targetURL string, eventType *catalog.EventType) (int64, error) {
	q := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("active = false").
		Set("updated_at = $1", now()).
		Where("tenant_id = $2", tenantID).
		Where("target_url = $3", targetURL).
		Where("active = true")
	if eventType != nil {
		q = q.Where("event_type = $4", string(*eventType))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) RecordSuccess(ctx context.Context, subID id.ID, at time.Time) error {
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("last_triggered_at = $1", at).
		Set("last_error = ''").
		Set("failure_count = 0").
		Set("updated_at = $2", now()).
		Where("id = $3", subID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return resthook.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) RecordFailure(ctx context.Context, subID id.ID, errText string) error {
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("failure_count = failure_count + 1").
		Set("last_error = $1", errText).
		Set("updated_at = $2", now()).
		Where("id = $3", subID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return resthook.ErrSubscriptionNotFound
	}
	return nil
}

func (s *Store) CountSubscriptions(ctx context.Context, tenantID string) (subscription.Counts, error) {
	var c subscription.Counts

	total, err := s.pg.NewSelect((*subscriptionModel)(nil)).
		Where("tenant_id = $1", tenantID).
		Count(ctx)
	if err != nil {
		return c, err
	}

	active, err := s.pg.NewSelect((*subscriptionModel)(nil)).
		Where("tenant_id = $1", tenantID).
		Where("active = true").
		Count(ctx)
	if err != nil {
		return c, err
	}

	c.Total, c.Active = total, active
	return c, nil
}

// ==================== Delivery Store ====================

func (s *Store) Enqueue(ctx context.Context, j *delivery.Job) error {
	_, err := s.pg.NewInsert(toJobModel(j)).Exec(ctx)
	return err
}

func (s *Store) Dequeue(ctx context.Context, limit int, lease time.Duration) ([]*delivery.Job, error) {
	// FOR UPDATE SKIP LOCKED lets several engines share the queue.
	t := now()
	var models []jobModel
	err := s.pg.NewRaw(`
		UPDATE resthook_jobs
		SET state = 'in_flight', lease_expires_at = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM resthook_jobs
			WHERE (state = 'queued' AND next_attempt_at <= $2)
			   OR (state = 'in_flight' AND (lease_expires_at IS NULL OR lease_expires_at <= $2))
			ORDER BY next_attempt_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, t.Add(lease), t, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	return jobsFromModels(models)
}

func (s *Store) UpdateJob(ctx context.Context, j *delivery.Job) error {
	m := toJobModel(j)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return resthook.ErrJobNotFound
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*delivery.Job, error) {
	m := new(jobModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", jobID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, resthook.ErrJobNotFound
		}
		return nil, err
	}
	return fromJobModel(m)
}

func (s *Store) ListJobsByEvent(ctx context.Context, eventID id.ID) ([]*delivery.Job, error) {
	var models []jobModel
	if err := s.pg.NewSelect(&models).
		Where("event_id = $1", eventID.String()).
		OrderExpr("id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return jobsFromModels(models)
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	return s.pg.NewSelect((*jobModel)(nil)).
		Where("state IN ('queued', 'in_flight')").
		Count(ctx)
}

func (s *Store) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*jobModel)(nil)).
		Where("state IN ('succeeded', 'failed')").
		Where("completed_at < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Delivery Log Store ====================

func (s *Store) CreateEntry(ctx context.Context, e *deliverylog.Entry) error {
	_, err := s.pg.NewInsert(toEntryModel(e)).Exec(ctx)
	return err
}

func (s *Store) CompleteEntry(ctx context.Context, e *deliverylog.Entry) error {
	res, err := s.pg.NewUpdate((*entryModel)(nil)).
		Set("status = $1", string(e.Status)).
		Set("status_code = $2", e.StatusCode).
		Set("response_body = $3", e.ResponseBody).
		Set("error = $4", e.Error).
		Set("latency_ms = $5", e.LatencyMs).
		Set("completed_at = $6", e.CompletedAt).
		Set("updated_at = $7", now()).
		Where("id = $8", e.ID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return resthook.ErrLogEntryNotFound
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.ID) (*deliverylog.Entry, error) {
	m := new(entryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", entryID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, resthook.ErrLogEntryNotFound
		}
		return nil, err
	}
	return fromEntryModel(m)
}

func (s *Store) ListByJob(ctx context.Context, jobID id.ID) ([]*deliverylog.Entry, error) {
	var models []entryModel
	if err := s.pg.NewSelect(&models).
		Where("job_id = $1", jobID.String()).
		OrderExpr("attempt ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return entriesFromModels(models)
}

func (s *Store) ListBySubscription(ctx context.Context, subID id.ID, opts deliverylog.ListOpts) ([]*deliverylog.Entry, error) {
	var models []entryModel
	q := s.pg.NewSelect(&models).Where("subscription_id = $1", subID.String())

	if opts.Status != nil {
		q = q.Where("status = $2", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entriesFromModels(models)
}

func (s *Store) ListRecentByTenant(ctx context.Context, tenantID string, limit int) ([]*deliverylog.Entry, error) {
	var models []entryModel
	q := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID).
		OrderExpr("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entriesFromModels(models)
}

func (s *Store) CountEntries(ctx context.Context, tenantID string) (deliverylog.Counts, error) {
	var c deliverylog.Counts

	total, err := s.pg.NewSelect((*entryModel)(nil)).
		Where("tenant_id = $1", tenantID).
		Count(ctx)
	if err != nil {
		return c, err
	}

	success, err := s.pg.NewSelect((*entryModel)(nil)).
		Where("tenant_id = $1", tenantID).
		Where("status = $2", string(deliverylog.StatusSuccess)).
		Count(ctx)
	if err != nil {
		return c, err
	}

	failed, err := s.pg.NewSelect((*entryModel)(nil)).
		Where("tenant_id = $1", tenantID).
		Where("status = $2", string(deliverylog.StatusFailed)).
		Count(ctx)
	if err != nil {
		return c, err
	}

	c.Total, c.Success, c.Failed = total, success, failed
	return c, nil
}

// ==================== Helpers ====================

func subscriptionsFromModels(models []subscriptionModel) ([]*subscription.Subscription, error) {
	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func jobsFromModels(models []jobModel) ([]*delivery.Job, error) {
	result := make([]*delivery.Job, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = j
	}
	return result, nil
}

func entriesFromModels(models []entryModel) ([]*deliverylog.Entry, error) {
	result := make([]*deliverylog.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
