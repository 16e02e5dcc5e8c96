package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/service/lead"
)

// LeadRepo implements lead.Repository against PostgreSQL.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

const leadColumns = `
	id, campaign_id, email, COALESCE(full_name,''), COALESCE(first_name,''), COALESCE(last_name,''),
	COALESCE(company,''), queue_position, status, processing_started_at, processed_at,
	COALESCE(verification_status,''), verified_at, retry_after,
	COALESCE(provider_message_id,''), COALESCE(error_message,''), created_at, updated_at`

func scanLead(row rowScanner) (*domain.Lead, error) {
	l := &domain.Lead{}
	err := row.Scan(
		&l.ID, &l.CampaignID, &l.Email, &l.FullName, &l.FirstName, &l.LastName,
		&l.Company, &l.QueuePosition, &l.Status, &l.ProcessingStartedAt, &l.ProcessedAt,
		&l.VerificationStatus, &l.VerifiedAt, &l.RetryAfter,
		&l.ProviderMessageID, &l.ErrorMessage, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

func (r *LeadRepo) getOne(ctx context.Context, op, where string, args ...interface{}) (*domain.Lead, error) {
	l, err := scanLead(r.db.QueryRowContext(ctx, `SELECT`+leadColumns+` FROM outreach_leads WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lead.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return l, nil
}

func (r *LeadRepo) Get(ctx context.Context, id string) (*domain.Lead, error) {
	return r.getOne(ctx, "get lead", `id = $1`, id)
}

func (r *LeadRepo) FindByEmail(ctx context.Context, campaignID, email string) (*domain.Lead, error) {
	return r.getOne(ctx, "find lead by email", `campaign_id = $1 AND email = $2`, campaignID, email)
}

// FindNext relies on the (campaign_id, status, queue_position) index.
func (r *LeadRepo) FindNext(ctx context.Context, campaignID string) (*domain.Lead, error) {
	return r.getOne(ctx, "find next lead",
		`campaign_id = $1 AND status IN ('QUEUED','VERIFIED') ORDER BY queue_position ASC LIMIT 1`, campaignID)
}

func (r *LeadRepo) Create(ctx context.Context, l *domain.Lead) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_leads
			(id, campaign_id, email, full_name, first_name, last_name, company,
			 queue_position, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, l.ID, l.CampaignID, l.Email, l.FullName, l.FirstName, l.LastName, l.Company,
		l.QueuePosition, l.Status)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (r *LeadRepo) Update(ctx context.Context, id string, u domain.LeadUpdate) error {
	sets := []string{}
	args := []interface{}{}
	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.FirstName != nil {
		add("first_name", *u.FirstName)
	}
	if u.LastName != nil {
		add("last_name", *u.LastName)
	}
	if u.ProcessingStartedAt != nil {
		add("processing_started_at", *u.ProcessingStartedAt)
	}
	if u.ProcessedAt != nil {
		add("processed_at", *u.ProcessedAt)
	}
	if u.VerificationStatus != nil {
		add("verification_status", *u.VerificationStatus)
	}
	if u.VerifiedAt != nil {
		add("verified_at", *u.VerifiedAt)
	}
	if u.RetryAfter != nil {
		add("retry_after", *u.RetryAfter)
	} else if u.ClearRetryAfter {
		sets = append(sets, "retry_after = NULL")
	}
	if u.ProviderMessageID != nil {
		add("provider_message_id", *u.ProviderMessageID)
	}
	if u.ErrorMessage != nil {
		add("error_message", *u.ErrorMessage)
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE outreach_leads SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)),
		args...)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return lead.ErrNotFound
	}
	return nil
}

func (r *LeadRepo) FindStuck(ctx context.Context, campaignID string, status domain.LeadStatus, startedBefore time.Time) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+leadColumns+`
		FROM outreach_leads
		WHERE campaign_id = $1 AND status = $2 AND processing_started_at < $3
		ORDER BY queue_position ASC`, campaignID, string(status), startedBefore)
	if err != nil {
		return nil, fmt.Errorf("find stuck leads: %w", err)
	}
	return scanLeads(rows)
}

func (r *LeadRepo) FindRetryDue(ctx context.Context, campaignID string, now time.Time) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+leadColumns+`
		FROM outreach_leads
		WHERE campaign_id = $1 AND status = $2 AND retry_after IS NOT NULL AND retry_after <= $3
		ORDER BY queue_position ASC`, campaignID, string(domain.LeadRisky), now)
	if err != nil {
		return nil, fmt.Errorf("find retry-due leads: %w", err)
	}
	return scanLeads(rows)
}

func scanLeads(rows *sql.Rows) ([]domain.Lead, error) {
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *LeadRepo) MaxQueuePosition(ctx context.Context, campaignID string) (int64, error) {
	var max int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(queue_position), 0) FROM outreach_leads WHERE campaign_id = $1`, campaignID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max queue position: %w", err)
	}
	return max, nil
}

func (r *LeadRepo) CountByStatus(ctx context.Context, campaignID string) (map[domain.LeadStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM outreach_leads WHERE campaign_id = $1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count leads: %w", err)
	}
	defer rows.Close()

	out := map[domain.LeadStatus]int{}
	for rows.Next() {
		var (
			status domain.LeadStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan lead count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
