package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

// AuditRepo implements audit.LogRepository against PostgreSQL.
type AuditRepo struct{ db *sql.DB }

// NewAuditRepo creates a Postgres-backed audit log.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Append(ctx context.Context, e *domain.LogEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_logs
			(id, campaign_id, lead_id, email, action, outcome, lead_status, subject, body,
			 verifier_response, provider_response, error_message, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, e.ID, e.CampaignID, e.LeadID, e.Email, e.Action, e.Outcome, e.LeadStatus, e.Subject, e.Body,
		e.VerifierResponse, e.ProviderResponse, e.ErrorMessage, e.DurationMs, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (r *AuditRepo) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, lead_id, email, action, outcome, lead_status, subject, body,
		       verifier_response, provider_response, error_message, duration_ms, created_at
		FROM outreach_logs
		WHERE campaign_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.LeadID, &e.Email, &e.Action, &e.Outcome, &e.LeadStatus,
			&e.Subject, &e.Body, &e.VerifierResponse, &e.ProviderResponse, &e.ErrorMessage,
			&e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MetricRepo implements audit.MetricRepository against PostgreSQL.
type MetricRepo struct{ db *sql.DB }

// NewMetricRepo creates a Postgres-backed counter store.
func NewMetricRepo(db *sql.DB) *MetricRepo { return &MetricRepo{db: db} }

// Increment upserts so the first increment creates the row.
func (r *MetricRepo) Increment(ctx context.Context, scope, name string, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_metrics (scope, name, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (scope, name)
		DO UPDATE SET value = outreach_metrics.value + EXCLUDED.value, updated_at = NOW()
	`, scope, name, delta)
	if err != nil {
		return fmt.Errorf("increment metric: %w", err)
	}
	return nil
}

func (r *MetricRepo) Snapshot(ctx context.Context, scope string) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, value FROM outreach_metrics WHERE scope = $1`, scope)
	if err != nil {
		return nil, fmt.Errorf("snapshot metrics: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			name  string
			value int64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}
