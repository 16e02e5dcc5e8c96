package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, name, status, from_name, from_email, COALESCE(reply_to,''),
	subject_template, body_template, min_delay_ms, max_delay_ms,
	gaussian_mean, gaussian_std_dev, allow_catch_all,
	processed_count, skipped_count, error_count, resume_position,
	paused_at, started_at, last_activity_at, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.Name, &c.Status, &c.FromName, &c.FromEmail, &c.ReplyTo,
		&c.SubjectTemplate, &c.BodyTemplate, &c.MinDelayMs, &c.MaxDelayMs,
		&c.GaussianMean, &c.GaussianStdDev, &c.AllowCatchAll,
		&c.ProcessedCount, &c.SkippedCount, &c.ErrorCount, &c.ResumePosition,
		&c.PausedAt, &c.StartedAt, &c.LastActivityAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT`+campaignColumns+` FROM outreach_campaigns WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT` + campaignColumns + ` FROM outreach_campaigns`
	args := []interface{}{}
	if f.Status != "" {
		q += ` WHERE status = $1`
		args = append(args, f.Status)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, max(f.Offset, 0))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_campaigns
			(id, name, status, from_name, from_email, reply_to, subject_template, body_template,
			 min_delay_ms, max_delay_ms, gaussian_mean, gaussian_std_dev, allow_catch_all,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
	`, c.ID, c.Name, c.Status, c.FromName, c.FromEmail, c.ReplyTo, c.SubjectTemplate, c.BodyTemplate,
		c.MinDelayMs, c.MaxDelayMs, c.GaussianMean, c.GaussianStdDev, c.AllowCatchAll)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Update builds one UPDATE statement; counters are added server-side so
// concurrent writers never lose increments.
func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	add := func(expr string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if u.Status != nil {
		add("status = $%d", *u.Status)
	}
	if u.Counters.Processed != 0 {
		add("processed_count = processed_count + $%d", u.Counters.Processed)
	}
	if u.Counters.Skipped != 0 {
		add("skipped_count = skipped_count + $%d", u.Counters.Skipped)
	}
	if u.Counters.Errors != 0 {
		add("error_count = error_count + $%d", u.Counters.Errors)
	}
	if u.ResumePosition != nil {
		add("resume_position = $%d", *u.ResumePosition)
	} else if u.ClearResumePosition {
		sets = append(sets, "resume_position = NULL")
	}
	if u.PausedAt != nil {
		add("paused_at = $%d", *u.PausedAt)
	} else if u.ClearPausedAt {
		sets = append(sets, "paused_at = NULL")
	}
	if u.StartedAt != nil {
		add("started_at = COALESCE(started_at, $%d)", *u.StartedAt)
	}
	if u.LastActivityAt != nil {
		add("last_activity_at = $%d", *u.LastActivityAt)
	}
	if u.CompletedAt != nil {
		add("completed_at = $%d", *u.CompletedAt)
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, id)
	q := fmt.Sprintf("UPDATE outreach_campaigns SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if len(u.ExpectStatus) > 0 {
		statuses := make([]string, len(u.ExpectStatus))
		for i, s := range u.ExpectStatus {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		q += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n > 0 {
		return nil
	}

	if len(u.ExpectStatus) == 0 {
		return campaign.ErrNotFound
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM outreach_campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if !exists {
		return campaign.ErrNotFound
	}
	return campaign.ErrInvalidTransition
}
