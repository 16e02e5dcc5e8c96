package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
	"github.com/ignite/outreach-orchestrator/internal/service/audit"
	"github.com/ignite/outreach-orchestrator/internal/service/lead"
)

// DefaultStaleAge is how long a lead may sit mid-processing before it is
// presumed abandoned by a crashed worker.
const DefaultStaleAge = 10 * time.Minute

// Recovery actions recorded in the audit log.
const (
	ActionRecoverRequeue = "lead.recover.requeue"
	ActionGreylistRetry  = "lead.greylist.retry"
)

// RecoveryReport counts the repairs made by one scan.
type RecoveryReport struct {
	MarkedSent int `json:"marked_sent"`
	RolledBack int `json:"rolled_back"`
	Requeued   int `json:"requeued"`
	Failed     int `json:"failed"`
}

// Total is the number of leads repaired.
func (r RecoveryReport) Total() int { return r.MarkedSent + r.RolledBack + r.Requeued }

// RecoveryScanner repairs leads left mid-processing by a crashed run. It is
// run once per lock acquisition, before the main loop.
type RecoveryScanner struct {
	leads    lead.Repository
	recorder *audit.Recorder
	collect  *Collectors
	staleAge time.Duration
	now      func() time.Time
}

// NewRecoveryScanner creates a scanner. staleAge <= 0 uses DefaultStaleAge.
func NewRecoveryScanner(leads lead.Repository, recorder *audit.Recorder, collect *Collectors, staleAge time.Duration, now func() time.Time) *RecoveryScanner {
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	if now == nil {
		now = time.Now
	}
	if collect == nil {
		collect = NewCollectors(nil)
	}
	return &RecoveryScanner{leads: leads, recorder: recorder, collect: collect, staleAge: staleAge, now: now}
}

// Scan repairs the campaign's stale leads:
//   - SENDING with a provider message id: the send went out, mark SENT.
//   - SENDING without one: outcome unknown, roll back to VERIFIED.
//   - VERIFYING: the verdict was lost, return the lead to QUEUED.
func (s *RecoveryScanner) Scan(ctx context.Context, campaignID string) (RecoveryReport, error) {
	var report RecoveryReport
	cutoff := s.now().Add(-s.staleAge)

	sendingLeads, err := s.leads.FindStuck(ctx, campaignID, domain.LeadSending, cutoff)
	if err != nil {
		return report, fmt.Errorf("find stuck sending leads: %w", err)
	}
	for i := range sendingLeads {
		l := &sendingLeads[i]
		if l.ProviderMessageID != "" {
			if s.repair(ctx, l, domain.LeadSent, domain.ActionRecoverSent, true) {
				report.MarkedSent++
			} else {
				report.Failed++
			}
			continue
		}
		if s.repair(ctx, l, domain.LeadVerified, domain.ActionRecoverRollback, false) {
			report.RolledBack++
		} else {
			report.Failed++
		}
	}

	verifyingLeads, err := s.leads.FindStuck(ctx, campaignID, domain.LeadVerifying, cutoff)
	if err != nil {
		return report, fmt.Errorf("find stuck verifying leads: %w", err)
	}
	for i := range verifyingLeads {
		if s.repair(ctx, &verifyingLeads[i], domain.LeadQueued, ActionRecoverRequeue, false) {
			report.Requeued++
		} else {
			report.Failed++
		}
	}

	if report.Total() > 0 || report.Failed > 0 {
		logger.Info("recovery_complete", "campaign_id", campaignID,
			"marked_sent", report.MarkedSent, "rolled_back", report.RolledBack,
			"requeued", report.Requeued, "failed", report.Failed)
	}
	return report, nil
}

// RequeueDue returns greylisted leads whose retry-after time has passed to
// QUEUED so the running loop verifies them again. RISKY leads without a
// retry-after time (catch-all) are left alone.
func (s *RecoveryScanner) RequeueDue(ctx context.Context, campaignID string) (int, error) {
	due, err := s.leads.FindRetryDue(ctx, campaignID, s.now())
	if err != nil {
		return 0, fmt.Errorf("find retry-due leads: %w", err)
	}
	n := 0
	for i := range due {
		if s.repair(ctx, &due[i], domain.LeadQueued, ActionGreylistRetry, false) {
			n++
		}
	}
	if n > 0 {
		logger.Info("greylisted_leads_requeued", "campaign_id", campaignID, "count", n)
	}
	return n, nil
}

func (s *RecoveryScanner) repair(ctx context.Context, l *domain.Lead, to domain.LeadStatus, action string, terminal bool) bool {
	from := l.Status
	u := domain.LeadUpdate{Status: &to, ClearRetryAfter: to == domain.LeadQueued}
	if terminal {
		now := s.now()
		u.ProcessedAt = &now
	}
	if err := s.leads.Update(ctx, l.ID, u); err != nil {
		logger.Error("recovery_update_failed", "campaign_id", l.CampaignID, "lead_id", l.ID, "error", err)
		return false
	}

	outcome := domain.OutcomeSkipped
	if to == domain.LeadSent {
		outcome = domain.OutcomeSent
	}
	entry := &domain.LogEntry{
		CampaignID:   l.CampaignID,
		LeadID:       l.ID,
		Email:        l.Email,
		Action:       action,
		Outcome:      outcome,
		LeadStatus:   to,
		ErrorMessage: fmt.Sprintf("recovered from %s (message id %q)", from, l.ProviderMessageID),
	}
	if l.ProcessingStartedAt != nil {
		entry.DurationMs = s.now().Sub(*l.ProcessingStartedAt).Milliseconds()
	}
	if err := s.recorder.Log(ctx, entry); err != nil {
		logger.Error("audit_write_failed", "campaign_id", l.CampaignID, "lead_id", l.ID, "error", err)
	}

	s.recorder.Count(ctx, l.CampaignID, domain.MetricRecovered)
	s.collect.Recovered.WithLabelValues(action).Inc()
	logger.Warn("lead_recovered", "campaign_id", l.CampaignID, "lead_id", l.ID, "from", from, "to", to)
	return true
}
