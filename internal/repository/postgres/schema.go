package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the DDL for every table the orchestrator uses. Statements are
// idempotent so Migrate can run on every deploy.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS outreach_campaigns (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		status           TEXT NOT NULL,
		from_name        TEXT NOT NULL DEFAULT '',
		from_email       TEXT NOT NULL,
		reply_to         TEXT,
		subject_template TEXT NOT NULL,
		body_template    TEXT NOT NULL,
		min_delay_ms     BIGINT NOT NULL,
		max_delay_ms     BIGINT NOT NULL,
		gaussian_mean    DOUBLE PRECISION,
		gaussian_std_dev DOUBLE PRECISION,
		allow_catch_all  BOOLEAN NOT NULL DEFAULT FALSE,
		processed_count  INTEGER NOT NULL DEFAULT 0,
		skipped_count    INTEGER NOT NULL DEFAULT 0,
		error_count      INTEGER NOT NULL DEFAULT 0,
		resume_position  BIGINT,
		paused_at        TIMESTAMPTZ,
		started_at       TIMESTAMPTZ,
		last_activity_at TIMESTAMPTZ,
		completed_at     TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS outreach_leads (
		id                    TEXT PRIMARY KEY,
		campaign_id           TEXT NOT NULL REFERENCES outreach_campaigns(id),
		email                 TEXT NOT NULL,
		full_name             TEXT,
		first_name            TEXT,
		last_name             TEXT,
		company               TEXT,
		queue_position        BIGINT NOT NULL,
		status                TEXT NOT NULL,
		processing_started_at TIMESTAMPTZ,
		processed_at          TIMESTAMPTZ,
		verification_status   TEXT,
		verified_at           TIMESTAMPTZ,
		retry_after           TIMESTAMPTZ,
		provider_message_id   TEXT,
		error_message         TEXT,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (campaign_id, email)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outreach_leads_queue
		ON outreach_leads (campaign_id, status, queue_position)`,
	`CREATE TABLE IF NOT EXISTS outreach_logs (
		id                TEXT PRIMARY KEY,
		campaign_id       TEXT NOT NULL,
		lead_id           TEXT NOT NULL,
		email             TEXT NOT NULL DEFAULT '',
		action            TEXT NOT NULL,
		outcome           TEXT NOT NULL,
		lead_status       TEXT NOT NULL,
		subject           TEXT NOT NULL DEFAULT '',
		body              TEXT NOT NULL DEFAULT '',
		verifier_response TEXT NOT NULL DEFAULT '',
		provider_response TEXT NOT NULL DEFAULT '',
		error_message     TEXT NOT NULL DEFAULT '',
		duration_ms       BIGINT NOT NULL DEFAULT 0,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outreach_logs_campaign
		ON outreach_logs (campaign_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS outreach_metrics (
		scope      TEXT NOT NULL,
		name       TEXT NOT NULL,
		value      BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (scope, name)
	)`,
	`CREATE TABLE IF NOT EXISTS campaign_locks (
		id          TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		acquired_at TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate applies Schema in order.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
