package campaign

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/apperrors"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
)

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
	now  func() time.Time

	defaultMinDelayMs int64
	defaultMaxDelayMs int64
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithDefaultPacing sets the bounds used when a new campaign specifies
// neither min_delay_ms nor max_delay_ms.
func (s *Service) WithDefaultPacing(minMs, maxMs int64) *Service {
	s.defaultMinDelayMs = minMs
	s.defaultMaxDelayMs = maxMs
	return s
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name            string   `json:"name"`
	FromName        string   `json:"from_name"`
	FromEmail       string   `json:"from_email"`
	ReplyTo         string   `json:"reply_to"`
	SubjectTemplate string   `json:"subject_template"`
	BodyTemplate    string   `json:"body_template"`
	MinDelayMs      int64    `json:"min_delay_ms"`
	MaxDelayMs      int64    `json:"max_delay_ms"`
	GaussianMean    *float64 `json:"gaussian_mean,omitempty"`
	GaussianStdDev  *float64 `json:"gaussian_std_dev,omitempty"`
	AllowCatchAll   bool     `json:"allow_catch_all"`
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, error) {
	return s.repo.List(ctx, f)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	const op = "campaign.create"
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.Validation(op, "name is required")
	}
	if _, err := mail.ParseAddress(input.FromEmail); err != nil {
		return nil, apperrors.Validation(op, "from_email %q is not a valid address", input.FromEmail)
	}
	if input.SubjectTemplate == "" || input.BodyTemplate == "" {
		return nil, apperrors.Validation(op, "subject and body templates are required")
	}
	if input.MinDelayMs == 0 && input.MaxDelayMs == 0 {
		input.MinDelayMs, input.MaxDelayMs = s.defaultMinDelayMs, s.defaultMaxDelayMs
	}
	if input.MinDelayMs <= 0 || input.MaxDelayMs < input.MinDelayMs {
		return nil, apperrors.Validation(op, "pacing bounds must satisfy 0 < min <= max (got %d, %d)", input.MinDelayMs, input.MaxDelayMs)
	}
	if input.GaussianStdDev != nil && *input.GaussianStdDev <= 0 {
		return nil, apperrors.Validation(op, "gaussian_std_dev must be positive")
	}

	now := s.now()
	c := &domain.Campaign{
		ID:              uuid.New().String(),
		Name:            input.Name,
		Status:          domain.CampaignDraft,
		FromName:        input.FromName,
		FromEmail:       input.FromEmail,
		ReplyTo:         input.ReplyTo,
		SubjectTemplate: input.SubjectTemplate,
		BodyTemplate:    input.BodyTemplate,
		MinDelayMs:      input.MinDelayMs,
		MaxDelayMs:      input.MaxDelayMs,
		GaussianMean:    input.GaussianMean,
		GaussianStdDev:  input.GaussianStdDev,
		AllowCatchAll:   input.AllowCatchAll,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Queue makes a draft or paused campaign eligible for execution.
func (s *Service) Queue(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.CampaignQueued, UpdateFields{
		ExpectStatus:  []domain.CampaignStatus{domain.CampaignDraft, domain.CampaignPaused},
		ClearPausedAt: true,
	})
}

// Pause asks a queued or running campaign to stop after its current lead.
func (s *Service) Pause(ctx context.Context, id string) error {
	now := s.now()
	return s.transition(ctx, id, domain.CampaignPaused, UpdateFields{
		ExpectStatus: []domain.CampaignStatus{domain.CampaignQueued, domain.CampaignRunning},
		PausedAt:     &now,
	})
}

// Resume re-queues a paused campaign. The next execution continues from
// the lowest queued position.
func (s *Service) Resume(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.CampaignQueued, UpdateFields{
		ExpectStatus:  []domain.CampaignStatus{domain.CampaignPaused},
		ClearPausedAt: true,
	})
}

// Abort asks the campaign to stop permanently. A running loop finalizes
// ABORTED at its next iteration; otherwise the next execution does.
func (s *Service) Abort(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.CampaignAborting, UpdateFields{
		ExpectStatus: []domain.CampaignStatus{domain.CampaignQueued, domain.CampaignRunning, domain.CampaignPaused},
	})
}

func (s *Service) transition(ctx context.Context, id string, to domain.CampaignStatus, u UpdateFields) error {
	u.Status = &to
	if err := s.repo.Update(ctx, id, u); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			logger.Warn("campaign_transition_rejected", "campaign_id", id, "to", string(to))
		}
		return err
	}
	logger.Info("campaign_transition", "campaign_id", id, "to", string(to))
	return nil
}
