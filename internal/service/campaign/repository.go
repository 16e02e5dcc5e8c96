package campaign

import (
	"context"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, error)

	// Create inserts a new campaign. The ID must already be set.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update applies the non-nil fields and adds Counters to the running
	// counters in one atomic write. When ExpectStatus is non-empty the write
	// only happens if the current status is one of them; otherwise
	// ErrInvalidTransition is returned.
	Update(ctx context.Context, id string, u UpdateFields) error
}

// ListFilter controls filtering for campaign lists.
// Results are newest first; Offset pages through them.
type ListFilter struct {
	Status domain.CampaignStatus
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	ExpectStatus []domain.CampaignStatus

	Status   *domain.CampaignStatus
	Counters domain.CounterDelta

	ResumePosition      *int64
	ClearResumePosition bool
	PausedAt            *time.Time
	ClearPausedAt       bool
	StartedAt           *time.Time
	LastActivityAt      *time.Time
	CompletedAt         *time.Time
}

// Allows reports whether a campaign in status s may be written under u.
func (u UpdateFields) Allows(s domain.CampaignStatus) bool {
	if len(u.ExpectStatus) == 0 {
		return true
	}
	for _, e := range u.ExpectStatus {
		if e == s {
			return true
		}
	}
	return false
}

// Apply mutates c in place. Repositories that hold whole documents use it
// so their semantics match the SQL implementation.
func (u UpdateFields) Apply(c *domain.Campaign) {
	if u.Status != nil {
		c.Status = *u.Status
	}
	c.ProcessedCount += u.Counters.Processed
	c.SkippedCount += u.Counters.Skipped
	c.ErrorCount += u.Counters.Errors
	if u.ClearResumePosition {
		c.ResumePosition = nil
	}
	if u.ResumePosition != nil {
		v := *u.ResumePosition
		c.ResumePosition = &v
	}
	if u.ClearPausedAt {
		c.PausedAt = nil
	}
	if u.PausedAt != nil {
		c.PausedAt = u.PausedAt
	}
	if u.StartedAt != nil {
		c.StartedAt = u.StartedAt
	}
	if u.LastActivityAt != nil {
		c.LastActivityAt = u.LastActivityAt
	}
	if u.CompletedAt != nil {
		c.CompletedAt = u.CompletedAt
	}
}
