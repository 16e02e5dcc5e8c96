// Package audit records the compliance trail and the outcome counters.
//
// Every lead processing attempt and every recovery action produces exactly
// one LogEntry. Counters are kept per scope (GLOBAL and campaign:<id>) and
// are only ever changed by atomic increments.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
)

// LogRepository persists audit entries. Entries are append-only.
type LogRepository interface {
	Append(ctx context.Context, e *domain.LogEntry) error
	ListByCampaign(ctx context.Context, campaignID string, limit int) ([]domain.LogEntry, error)
}

// MetricRepository stores named counters per scope.
type MetricRepository interface {
	// Increment atomically adds delta to the counter, creating it at zero
	// if needed.
	Increment(ctx context.Context, scope, name string, delta int64) error
	// Snapshot returns every counter in the scope.
	Snapshot(ctx context.Context, scope string) (map[string]int64, error)
}

// Recorder writes audit entries and bumps counters in both scopes.
type Recorder struct {
	logs    LogRepository
	metrics MetricRepository
	now     func() time.Time
}

// NewRecorder creates a recorder.
func NewRecorder(logs LogRepository, metrics MetricRepository) *Recorder {
	return &Recorder{logs: logs, metrics: metrics, now: time.Now}
}

// Log appends one audit entry, filling ID and CreatedAt when unset.
func (r *Recorder) Log(ctx context.Context, e *domain.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	if err := r.logs.Append(ctx, e); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Count increments each named counter by one in the GLOBAL and campaign
// scopes. Counters are advisory, so failures are logged and the remaining
// increments still run.
func (r *Recorder) Count(ctx context.Context, campaignID string, names ...string) {
	for _, name := range names {
		for _, scope := range []string{domain.MetricScopeGlobal, domain.CampaignScope(campaignID)} {
			if err := r.metrics.Increment(ctx, scope, name, 1); err != nil {
				logger.Warn("metric_increment_failed", "scope", scope, "metric", name, "error", err)
			}
		}
	}
}

// Snapshot returns the counters of one scope.
func (r *Recorder) Snapshot(ctx context.Context, scope string) (map[string]int64, error) {
	return r.metrics.Snapshot(ctx, scope)
}

// History returns the most recent audit entries of a campaign.
func (r *Recorder) History(ctx context.Context, campaignID string, limit int) ([]domain.LogEntry, error) {
	return r.logs.ListByCampaign(ctx, campaignID, limit)
}
