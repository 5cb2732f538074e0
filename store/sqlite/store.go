// Package sqlite is the SQLite backend of resthook, built on the Grove ORM.
// Open the database with sqlitedriver, wrap it with grove.Open and pass it to New;
// Migrate needs no further imports.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
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

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
// The sqlitemigrate executor is registered by this package's import of
// sqlitedriver/sqlitemigrate.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("resthook/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", resthook.ErrMigrationFailed, err)
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
	_, err := s.sdb.NewInsert(toAPIKeyModel(k)).Exec(ctx)
	return err
}

func (s *Store) GetKey(ctx context.Context, keyID id.ID) (*apikey.Key, error) {
	m := new(apiKeyModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", keyID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("hash = ?", hash).
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
	if err := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
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
	res, err := s.sdb.NewUpdate((*apiKeyModel)(nil)).
		Set("active = ?", false).
		Set("revoked_at = COALESCE(revoked_at, ?)", at).
		Set("updated_at = ?", now()).
		Where("id = ?", keyID.String()).
		Where("tenant_id = ?", tenantID).
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
	_, err := s.sdb.NewUpdate((*apiKeyModel)(nil)).
		Set("last_used_at = ?", at).
		Where("id = ?", keyID.String()).
		Exec(ctx)
	return err
}

// ==================== Subscription Store ====================

func (s *Store) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	_, err := s.sdb.NewInsert(toSubscriptionModel(sub)).
		OnConflict("(tenant_id, event_type, target_url) DO UPDATE").
		Set("active = 1").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	m := new(subscriptionModel)
	if err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", sub.TenantID).
		Where("event_type = ?", string(sub.EventType)).
		Where("target_url = ?", sub.TargetURL).
		Scan(ctx); err != nil {
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
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
	q := s.sdb.NewSelect(&models).Where("tenant_id = ?", tenantID)

	if opts.EventType != nil {
		q = q.Where("event_type = ?", string(*opts.EventType))
	}
	if opts.Active != nil {
		q = q.Where("active = ?", *opts.Active)
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
	q := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		Where("active = 1")
	if eventType != nil {
		q = q.Where("event_type = ?", string(*eventType))
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return subscriptionsFromModels(models)
}

func (s *Store) Deactivate(ctx context.Context, tenantID, targetURL string, eventType *catalog.EventType) (int64, error) {
	q := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", now()).
		Where("tenant_id = ?", tenantID).
		Where("target_url = ?", targetURL).
		Where("active = 1")
	if eventType != nil {
		q = q.Where("event_type = ?", string(*eventType))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) RecordSuccess(ctx context.Context, subID id.ID, at time.Time) error {
	return requireRows(resthook.ErrSubscriptionNotFound)(s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("last_triggered_at = ?", at).
		Set("last_error = ''").
		Set("failure_count = 0").
		Set("updated_at = ?", now()).
		Where("id = ?", subID.String()).
		Exec(ctx))
}

// RecordFailure increments failure_count in SQL so concurrent attempts
// never lose an increment.
func (s *Store) RecordFailure(ctx context.Context, subID id.ID, errText string) error {
	return requireRows(resthook.ErrSubscriptionNotFound)(s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("failure_count = failure_count + 1").
		Set("last_error = ?", errText).
		Set("updated_at = ?", now()).
		Where("id = ?", subID.String()).
		Exec(ctx))
}

func (s *Store) CountSubscriptions(ctx context.Context, tenantID string) (subscription.Counts, error) {
	var c subscription.Counts

	total, err := s.sdb.NewSelect((*subscriptionModel)(nil)).
		Where("tenant_id = ?", tenantID).
		Count(ctx)
	if err != nil {
		return c, err
	}

	active, err := s.sdb.NewSelect((*subscriptionModel)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("active = 1").
		Count(ctx)
	if err != nil {
		return c, err
	}

	c.Total, c.Active = total, active
	return c, nil
}

// ==================== Delivery Store ====================

func (s *Store) Enqueue(ctx context.Context, j *delivery.Job) error {
	_, err := s.sdb.NewInsert(toJobModel(j)).Exec(ctx)
	return err
}

func (s *Store) Dequeue(ctx context.Context, limit int, lease time.Duration) ([]*delivery.Job, error) {
	// SQLite serializes writes, so the claiming UPDATE is atomic on its own.
	t := now()
	var models []jobModel
	err := s.sdb.NewRaw(`
		UPDATE resthook_jobs
		SET state = 'in_flight', lease_expires_at = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM resthook_jobs
			WHERE (state = 'queued' AND next_attempt_at <= ?)
			   OR (state = 'in_flight' AND (lease_expires_at IS NULL OR lease_expires_at <= ?))
			ORDER BY next_attempt_at ASC
			LIMIT ?
		)
		RETURNING *
	`, t.Add(lease), t, t, t, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	return jobsFromModels(models)
}

func (s *Store) UpdateJob(ctx context.Context, j *delivery.Job) error {
	m := toJobModel(j)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", jobID.String()).
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
	if err := s.sdb.NewSelect(&models).
		Where("event_id = ?", eventID.String()).
		OrderExpr("id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return jobsFromModels(models)
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	return s.sdb.NewSelect((*jobModel)(nil)).
		Where("state IN ('queued', 'in_flight')").
		Count(ctx)
}

func (s *Store) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*jobModel)(nil)).
		Where("state IN ('succeeded', 'failed')").
		Where("completed_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Delivery Log Store ====================

func (s *Store) CreateEntry(ctx context.Context, e *deliverylog.Entry) error {
	_, err := s.sdb.NewInsert(toEntryModel(e)).Exec(ctx)
	return err
}

func (s *Store) CompleteEntry(ctx context.Context, e *deliverylog.Entry) error {
	res, err := s.sdb.NewUpdate((*entryModel)(nil)).
		Set("status = ?", string(e.Status)).
		Set("status_code = ?", e.StatusCode).
		Set("response_body = ?", e.ResponseBody).
		Set("error = ?", e.Error).
		Set("latency_ms = ?", e.LatencyMs).
		Set("completed_at = ?", e.CompletedAt).
		Set("updated_at = ?", now()).
		Where("id = ?", e.ID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", entryID.String()).
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
	if err := s.sdb.NewSelect(&models).
		Where("job_id = ?", jobID.String()).
		OrderExpr("attempt ASC, id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return entriesFromModels(models)
}

func (s *Store) ListBySubscription(ctx context.Context, subID id.ID, opts deliverylog.ListOpts) ([]*deliverylog.Entry, error) {
	var models []entryModel
	q := s.sdb.NewSelect(&models).Where("subscription_id = ?", subID.String())

	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
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
	q := s.sdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
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

	total, err := s.sdb.NewSelect((*entryModel)(nil)).
		Where("tenant_id = ?", tenantID).
		Count(ctx)
	if err != nil {
		return c, err
	}

	success, err := s.sdb.NewSelect((*entryModel)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", string(deliverylog.StatusSuccess)).
		Count(ctx)
	if err != nil {
		return c, err
	}

	failed, err := s.sdb.NewSelect((*entryModel)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("status = ?", string(deliverylog.StatusFailed)).
		Count(ctx)
	if err != nil {
		return c, err
	}

	c.Total, c.Success, c.Failed = total, success, failed
	return c, nil
}

// ==================== Helpers ====================

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// requireRows turns a write that matched no row into notFound.
func requireRows(notFound error) func(rowsAffecter, error) error {
	return func(res rowsAffecter, err error) error {
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return notFound
		}
		return nil
	}
}

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
