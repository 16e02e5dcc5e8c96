package lead

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-orchestrator/internal/content"
	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
)

// ImportInput is one row of a lead import.
type ImportInput struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Company  string `json:"company"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Invalid    []string `json:"invalid,omitempty"`
}

// Service implements lead list management.
type Service struct {
	repo   Repository
	signer *content.UnsubscribeSigner
	now    func() time.Time
}

// NewService creates a lead service.
func NewService(repo Repository, signer *content.UnsubscribeSigner) *Service {
	return &Service{repo: repo, signer: signer, now: time.Now}
}

// Get returns a single lead.
func (s *Service) Get(ctx context.Context, id string) (*domain.Lead, error) {
	return s.repo.Get(ctx, id)
}

// Stats returns the campaign's lead counts per status.
func (s *Service) Stats(ctx context.Context, campaignID string) (map[domain.LeadStatus]int, error) {
	return s.repo.CountByStatus(ctx, campaignID)
}

// Import appends leads to the campaign queue in input order. Addresses are
// trimmed and lowercased; unparseable addresses and addresses already in the
// campaign are skipped. Names are parsed once here so the processor rarely
// has to.
func (s *Service) Import(ctx context.Context, campaignID string, rows []ImportInput) (*ImportResult, error) {
	pos, err := s.repo.MaxQueuePosition(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("max queue position: %w", err)
	}

	res := &ImportResult{}
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		email := strings.ToLower(strings.TrimSpace(row.Email))
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			res.Invalid = append(res.Invalid, row.Email)
			continue
		}
		if seen[email] {
			res.Duplicates++
			continue
		}
		seen[email] = true

		_, err := s.repo.FindByEmail(ctx, campaignID, email)
		if err == nil {
			res.Duplicates++
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return res, fmt.Errorf("lookup %s: %w", logger.RedactEmail(email), err)
		}

		pos++
		now := s.now()
		first, last := content.ParseName(row.FullName, email)
		l := &domain.Lead{
			ID:            uuid.New().String(),
			CampaignID:    campaignID,
			Email:         email,
			FullName:      strings.TrimSpace(row.FullName),
			FirstName:     first,
			LastName:      last,
			Company:       strings.TrimSpace(row.Company),
			QueuePosition: pos,
			Status:        domain.LeadQueued,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Create(ctx, l); err != nil {
			return res, fmt.Errorf("create lead: %w", err)
		}
		res.Imported++
	}

	logger.Info("leads_imported", "campaign_id", campaignID,
		"imported", res.Imported, "duplicates", res.Duplicates, "invalid", len(res.Invalid))
	return res, nil
}

// Unsubscribe marks the lead UNSUBSCRIBED if the token matches. A lead that
// was never processed also gets processed_at so it leaves the queue cleanly.
func (s *Service) Unsubscribe(ctx context.Context, leadID, token string) error {
	if !s.signer.Verify(leadID, token) {
		return ErrInvalidToken
	}
	l, err := s.repo.Get(ctx, leadID)
	if err != nil {
		return err
	}
	if l.Status == domain.LeadUnsubscribed {
		return nil
	}

	now := s.now()
	status := domain.LeadUnsubscribed
	u := domain.LeadUpdate{Status: &status}
	if l.ProcessedAt == nil {
		u.ProcessedAt = &now
	}
	if err := s.repo.Update(ctx, leadID, u); err != nil {
		return err
	}
	logger.Info("lead_unsubscribed", "campaign_id", l.CampaignID, "lead_id", leadID, "previous_status", string(l.Status))
	return nil
}
