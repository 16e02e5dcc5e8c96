// Package memory implements every repository in process memory. It backs
// tests and single-process dry runs; semantics match the Postgres
// implementations, including atomic counter increments and conditional
// status writes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/service/campaign"
	"github.com/ignite/outreach-orchestrator/internal/service/lead"
)

// CampaignRepo implements campaign.Repository.
type CampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

// NewCampaignRepo creates an empty campaign repository.
func NewCampaignRepo() *CampaignRepo {
	return &CampaignRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (r *CampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CampaignRepo) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if f.Status == "" || c.Status == f.Status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *CampaignRepo) Update(_ context.Context, id string, u campaign.UpdateFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if !u.Allows(c.Status) {
		return campaign.ErrInvalidTransition
	}
	if u.StartedAt != nil && c.StartedAt != nil {
		u.StartedAt = nil
	}
	u.Apply(c)
	c.UpdatedAt = time.Now()
	return nil
}

// LeadRepo implements lead.Repository.
type LeadRepo struct {
	mu    sync.Mutex
	leads map[string]*domain.Lead
}

// NewLeadRepo creates an empty lead repository.
func NewLeadRepo() *LeadRepo {
	return &LeadRepo{leads: make(map[string]*domain.Lead)}
}

func (r *LeadRepo) Get(_ context.Context, id string) (*domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return nil, lead.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *LeadRepo) Create(_ context.Context, l *domain.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.leads[l.ID] = &cp
	return nil
}

func (r *LeadRepo) Update(_ context.Context, id string, u domain.LeadUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return lead.ErrNotFound
	}
	u.Apply(l)
	l.UpdatedAt = time.Now()
	return nil
}

func (r *LeadRepo) FindNext(_ context.Context, campaignID string) (*domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Lead
	for _, l := range r.leads {
		if l.CampaignID != campaignID || (l.Status != domain.LeadQueued && l.Status != domain.LeadVerified) {
			continue
		}
		if best == nil || l.QueuePosition < best.QueuePosition {
			best = l
		}
	}
	if best == nil {
		return nil, lead.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *LeadRepo) FindStuck(_ context.Context, campaignID string, status domain.LeadStatus, startedBefore time.Time) ([]domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Lead
	for _, l := range r.leads {
		if l.CampaignID == campaignID && l.Status == status &&
			l.ProcessingStartedAt != nil && l.ProcessingStartedAt.Before(startedBefore) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuePosition < out[j].QueuePosition })
	return out, nil
}

func (r *LeadRepo) FindRetryDue(_ context.Context, campaignID string, now time.Time) ([]domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Lead
	for _, l := range r.leads {
		if l.CampaignID == campaignID && l.Status == domain.LeadRisky &&
			l.RetryAfter != nil && !l.RetryAfter.After(now) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuePosition < out[j].QueuePosition })
	return out, nil
}

func (r *LeadRepo) FindByEmail(_ context.Context, campaignID, email string) (*domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.CampaignID == campaignID && l.Email == email {
			cp := *l
			return &cp, nil
		}
	}
	return nil, lead.ErrNotFound
}

func (r *LeadRepo) MaxQueuePosition(_ context.Context, campaignID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max int64
	for _, l := range r.leads {
		if l.CampaignID == campaignID && l.QueuePosition > max {
			max = l.QueuePosition
		}
	}
	return max, nil
}

func (r *LeadRepo) CountByStatus(_ context.Context, campaignID string) (map[domain.LeadStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[domain.LeadStatus]int{}
	for _, l := range r.leads {
		if l.CampaignID == campaignID {
			out[l.Status]++
		}
	}
	return out, nil
}

// AuditRepo implements audit.LogRepository.
type AuditRepo struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

// NewAuditRepo creates an empty audit log.
func NewAuditRepo() *AuditRepo { return &AuditRepo{} }

func (r *AuditRepo) Append(_ context.Context, e *domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

// ListByCampaign returns newest first.
func (r *AuditRepo) ListByCampaign(_ context.Context, campaignID string, limit int) ([]domain.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LogEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].CampaignID != campaignID {
			continue
		}
		out = append(out, r.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All returns every entry in append order.
func (r *AuditRepo) All() []domain.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LogEntry(nil), r.entries...)
}

// MetricRepo implements audit.MetricRepository.
type MetricRepo struct {
	mu     sync.Mutex
	values map[string]map[string]int64
}

// NewMetricRepo creates an empty counter store.
func NewMetricRepo() *MetricRepo {
	return &MetricRepo{values: make(map[string]map[string]int64)}
}

func (r *MetricRepo) Increment(_ context.Context, scope, name string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values[scope] == nil {
		r.values[scope] = make(map[string]int64)
	}
	r.values[scope][name] += delta
	return nil
}

func (r *MetricRepo) Snapshot(_ context.Context, scope string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.values[scope]))
	for k, v := range r.values[scope] {
		out[k] = v
	}
	return out, nil
}
