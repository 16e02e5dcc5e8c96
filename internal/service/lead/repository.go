package lead

import (
	"context"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

// Repository defines the data access contract for leads.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single lead. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Lead, error)

	// Create inserts a new lead. The ID must already be set.
	Create(ctx context.Context, l *domain.Lead) error

	// Update applies the non-nil fields of u in one atomic write.
	Update(ctx context.Context, id string, u domain.LeadUpdate) error

	// FindNext returns the campaign's queued lead (QUEUED or VERIFIED) with
	// the lowest queue position. Returns ErrNotFound when the queue is empty.
	FindNext(ctx context.Context, campaignID string) (*domain.Lead, error)

	// FindStuck returns the campaign's leads in status whose processing
	// started before the cutoff, in queue order.
	FindStuck(ctx context.Context, campaignID string, status domain.LeadStatus, startedBefore time.Time) ([]domain.Lead, error)

	// FindRetryDue returns the campaign's RISKY leads whose retry-after time
	// is set and not after now, in queue order.
	FindRetryDue(ctx context.Context, campaignID string, now time.Time) ([]domain.Lead, error)

	// FindByEmail returns the lead with this address in the campaign, or
	// ErrNotFound.
	FindByEmail(ctx context.Context, campaignID, email string) (*domain.Lead, error)

	// MaxQueuePosition returns the highest queue position in the campaign,
	// or 0 when it has no leads.
	MaxQueuePosition(ctx context.Context, campaignID string) (int64, error)

	// CountByStatus counts the campaign's leads per status.
	CountByStatus(ctx context.Context, campaignID string) (map[domain.LeadStatus]int, error)
}
