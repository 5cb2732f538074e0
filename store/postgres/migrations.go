package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the resthook store (PostgreSQL).
var Migrations = migrate.NewGroup("resthook")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_resthook_api_keys",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS resthook_api_keys (
    id           TEXT PRIMARY KEY,
    tenant_id    TEXT NOT NULL,
    prefix       TEXT NOT NULL DEFAULT '',
    hash         TEXT NOT NULL UNIQUE,
    label        TEXT NOT NULL DEFAULT '',
    active       BOOLEAN NOT NULL DEFAULT TRUE,
    expires_at   TIMESTAMPTZ,
    last_used_at TIMESTAMPTZ,
    revoked_at   TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_resthook_api_keys_tenant ON resthook_api_keys (tenant_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS resthook_api_keys`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_resthook_subscriptions",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS resthook_subscriptions (
    id                TEXT PRIMARY KEY,
    tenant_id         TEXT NOT NULL,
    event_type        TEXT NOT NULL,
    target_url        TEXT NOT NULL,
    active            BOOLEAN NOT NULL DEFAULT TRUE,
    last_triggered_at TIMESTAMPTZ,
    last_error        TEXT NOT NULL DEFAULT '',
    failure_count     INT NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (tenant_id, event_type, target_url)
);

CREATE INDEX IF NOT EXISTS idx_resthook_subscriptions_active ON resthook_subscriptions (tenant_id, event_type) WHERE active;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS resthook_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_resthook_jobs",
			Version: "20250601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS resthook_jobs (
    id               TEXT PRIMARY KEY,
    event_id         TEXT NOT NULL,
    subscription_id  TEXT NOT NULL,
    tenant_id        TEXT NOT NULL,
    event_type       TEXT NOT NULL,
    target_url       TEXT NOT NULL,
    payload          JSONB,
    attempt          INT NOT NULL DEFAULT 1,
    max_attempts     INT NOT NULL DEFAULT 3,
    state            TEXT NOT NULL DEFAULT 'queued',
    next_attempt_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    lease_expires_at TIMESTAMPTZ,
    last_error       TEXT NOT NULL DEFAULT '',
    last_status_code INT NOT NULL DEFAULT 0,
    completed_at     TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_resthook_jobs_queued ON resthook_jobs (next_attempt_at) WHERE state = 'queued';
CREATE INDEX IF NOT EXISTS idx_resthook_jobs_lease ON resthook_jobs (lease_expires_at) WHERE state = 'in_flight';
CREATE INDEX IF NOT EXISTS idx_resthook_jobs_event ON resthook_jobs (event_id);
CREATE INDEX IF NOT EXISTS idx_resthook_jobs_completed ON resthook_jobs (completed_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS resthook_jobs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_resthook_delivery_log",
			Version: "20250601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS resthook_delivery_log (
    id              TEXT PRIMARY KEY,
    job_id          TEXT NOT NULL,
    subscription_id TEXT NOT NULL,
    tenant_id       TEXT NOT NULL,
    event_type      TEXT NOT NULL,
    payload         JSONB,
    attempt         INT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    status_code     INT NOT NULL DEFAULT 0,
    response_body   TEXT NOT NULL DEFAULT '',
    error           TEXT NOT NULL DEFAULT '',
    latency_ms      INT NOT NULL DEFAULT 0,
    completed_at    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_resthook_delivery_log_job ON resthook_delivery_log (job_id, attempt);
CREATE INDEX IF NOT EXISTS idx_resthook_delivery_log_subscription ON resthook_delivery_log (subscription_id, created_at);
CREATE INDEX IF NOT EXISTS idx_resthook_delivery_log_tenant ON resthook_delivery_log (tenant_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS resthook_delivery_log`)
				return err
			},
		},
	)
}
