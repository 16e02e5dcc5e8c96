package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/content"
	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
	"github.com/ignite/outreach-orchestrator/internal/service/audit"
	"github.com/ignite/outreach-orchestrator/internal/service/lead"
	"github.com/ignite/outreach-orchestrator/internal/service/sending"
)

// DefaultVerificationMaxAge bounds how old a stored verification may be
// before a VERIFIED lead is checked again.
const DefaultVerificationMaxAge = 24 * time.Hour

// ProcessResult is the outcome of one lead processing attempt.
type ProcessResult struct {
	LeadID    string            `json:"lead_id"`
	Outcome   domain.Outcome    `json:"outcome"`
	Status    domain.LeadStatus `json:"status"`
	MessageID string            `json:"message_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Delta converts the outcome into campaign counter increments.
func (r ProcessResult) Delta() domain.CounterDelta {
	switch r.Outcome {
	case domain.OutcomeSent:
		return domain.CounterDelta{Processed: 1}
	case domain.OutcomeSkipped:
		return domain.CounterDelta{Skipped: 1}
	default:
		return domain.CounterDelta{Errors: 1}
	}
}

// ProcessorOptions configures a LeadProcessor. Zero values use defaults.
type ProcessorOptions struct {
	VerifyRetries      int
	VerificationMaxAge time.Duration
	Now                func() time.Time
}

// LeadProcessor runs a single lead through verify, resolve, send and record.
type LeadProcessor struct {
	leads    lead.Repository
	verifier sending.Verifier
	provider sending.Provider
	recorder *audit.Recorder
	renderer *content.Renderer
	spinner  *content.Spinner
	signer   *content.UnsubscribeSigner
	collect  *Collectors
	retries  int
	maxAge   time.Duration
	now      func() time.Time
}

// NewLeadProcessor wires a processor. collect may be nil.
func NewLeadProcessor(
	leads lead.Repository,
	verifier sending.Verifier,
	provider sending.Provider,
	recorder *audit.Recorder,
	renderer *content.Renderer,
	spinner *content.Spinner,
	signer *content.UnsubscribeSigner,
	collect *Collectors,
	opts ProcessorOptions,
) *LeadProcessor {
	if opts.VerifyRetries < 0 {
		opts.VerifyRetries = 0
	}
	if opts.VerificationMaxAge <= 0 {
		opts.VerificationMaxAge = DefaultVerificationMaxAge
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if collect == nil {
		collect = NewCollectors(nil)
	}
	return &LeadProcessor{
		leads:    leads,
		verifier: verifier,
		provider: provider,
		recorder: recorder,
		renderer: renderer,
		spinner:  spinner,
		signer:   signer,
		collect:  collect,
		retries:  opts.VerifyRetries,
		maxAge:   opts.VerificationMaxAge,
		now:      opts.Now,
	}
}

// attempt carries the audit fields gathered while a lead moves through
// the pipeline.
type attempt struct {
	campaign *domain.Campaign
	lead     *domain.Lead
	started  time.Time
	subject  string
	body     string
	verifier string
	provider string
}

// Process runs one lead to a terminal status. pre is a verification already
// persisted by the lookahead; when nil the lead is verified here (or its
// stored verification reused if fresh). Per-lead failures are recorded on
// the lead and in the result, never returned.
func (p *LeadProcessor) Process(ctx context.Context, c *domain.Campaign, l *domain.Lead, pre *domain.VerificationResult) ProcessResult {
	a := &attempt{campaign: c, lead: l, started: p.now()}
	if pre != nil && l.ProcessingStartedAt != nil {
		a.started = *l.ProcessingStartedAt
	}

	verdict := pre
	if verdict == nil {
		verdict = p.storedVerification(c, l)
	}
	if verdict == nil {
		var (
			done *ProcessResult
			err  error
		)
		verdict, done, err = p.verify(ctx, a, p.retries)
		if done != nil {
			return *done
		}
		if err != nil {
			return p.fail(ctx, a, domain.LeadError, fmt.Sprintf("verification failed: %v", err))
		}
	} else if verdict.RawResponse != "" {
		a.verifier = verdict.RawResponse
	}

	return p.send(ctx, a)
}

// Verify runs only the verification stage, for the lookahead. A non-nil
// ProcessResult means the lead was rejected and finalized. A non-nil error
// means no verdict was obtained and the lead is left VERIFYING for Process.
func (p *LeadProcessor) Verify(ctx context.Context, c *domain.Campaign, l *domain.Lead, maxRetries int) (*domain.VerificationResult, *ProcessResult, error) {
	a := &attempt{campaign: c, lead: l, started: p.now()}
	return p.verify(ctx, a, maxRetries)
}

// storedVerification returns the lead's persisted verification when it is
// VERIFIED, still fresh and acceptable under the campaign's current policy.
func (p *LeadProcessor) storedVerification(c *domain.Campaign, l *domain.Lead) *domain.VerificationResult {
	if l.Status != domain.LeadVerified || l.VerifiedAt == nil || l.VerificationStatus == "" {
		return nil
	}
	if p.now().Sub(*l.VerifiedAt) > p.maxAge {
		return nil
	}
	switch l.VerificationStatus {
	case domain.VerificationValid:
	case domain.VerificationCatchAll:
		if !c.AllowCatchAll {
			return nil
		}
	default:
		return nil
	}
	return &domain.VerificationResult{
		IsValid: l.VerificationStatus == domain.VerificationValid,
		Status:  l.VerificationStatus,
	}
}

func (p *LeadProcessor) verify(ctx context.Context, a *attempt, maxRetries int) (*domain.VerificationResult, *ProcessResult, error) {
	l := a.lead
	started := a.started
	u := domain.LeadUpdate{
		Status:              statusPtr(domain.LeadVerifying),
		ProcessingStartedAt: &started,
	}
	if l.FirstName == "" {
		first, last := content.ParseName(l.FullName, l.Email)
		if first != "" {
			u.FirstName = &first
			if l.LastName == "" && last != "" {
				u.LastName = &last
			}
		}
	}
	if err := p.write(ctx, l, u); err != nil {
		return nil, nil, err
	}

	res, err := p.verifier.Verify(ctx, l.Email, maxRetries)
	if err != nil {
		logger.Warn("lead_verify_failed", "campaign_id", a.campaign.ID, "lead_id", l.ID, "email", l.Email, "error", err)
		return nil, nil, err
	}
	a.verifier = res.RawResponse

	now := p.now()
	vu := domain.LeadUpdate{
		VerificationStatus: &res.Status,
		VerifiedAt:         &now,
	}

	switch {
	case res.IsValid:
	case res.IsGreylisted:
		hours := res.RetryAfterHours
		if hours <= 0 {
			hours = 1
		}
		retryAt := now.Add(time.Duration(hours * float64(time.Hour)))
		vu.RetryAfter = &retryAt
		done := p.reject(ctx, a, vu, domain.LeadRisky, "greylisted", domain.MetricRisky)
		return nil, &done, nil
	case res.IsCatchAll() && !a.campaign.AllowCatchAll:
		done := p.reject(ctx, a, vu, domain.LeadRisky, "catch-all domain not allowed", domain.MetricRisky)
		return nil, &done, nil
	case res.IsCatchAll():
	default:
		msg := res.Diagnosis
		if msg == "" {
			msg = "verification status " + res.Status
		}
		done := p.reject(ctx, a, vu, domain.LeadInvalid, msg, domain.MetricInvalid)
		return nil, &done, nil
	}

	vu.Status = statusPtr(domain.LeadVerified)
	if err := p.write(ctx, l, vu); err != nil {
		return nil, nil, err
	}
	return res, nil, nil
}

func (p *LeadProcessor) reject(ctx context.Context, a *attempt, u domain.LeadUpdate, status domain.LeadStatus, reason, metric string) ProcessResult {
	now := p.now()
	u.Status = &status
	u.ProcessedAt = &now
	u.ErrorMessage = &reason
	if err := p.write(ctx, a.lead, u); err != nil {
		logger.Error("lead_update_failed", "lead_id", a.lead.ID, "status", status, "error", err)
	}
	p.recorder.Count(ctx, a.campaign.ID, domain.MetricSkipped, metric)

	logger.Info("lead_skipped", "campaign_id", a.campaign.ID, "lead_id", a.lead.ID, "status", status, "reason", reason)
	return p.finish(ctx, a, ProcessResult{
		LeadID:  a.lead.ID,
		Outcome: domain.OutcomeSkipped,
		Status:  status,
		Error:   reason,
	})
}

func (p *LeadProcessor) send(ctx context.Context, a *attempt) ProcessResult {
	c, l := a.campaign, a.lead

	msg, err := p.compose(c, l)
	if err != nil {
		return p.fail(ctx, a, domain.LeadError, err.Error())
	}
	a.subject, a.body = msg.Subject, msg.HTMLContent

	sendingAt := p.now()
	if err := p.write(ctx, l, domain.LeadUpdate{
		Status:              statusPtr(domain.LeadSending),
		ProcessingStartedAt: &sendingAt,
	}); err != nil {
		return p.fail(ctx, a, domain.LeadError, err.Error())
	}

	res, err := p.provider.Send(ctx, msg)
	if err != nil {
		return p.fail(ctx, a, domain.LeadError, fmt.Sprintf("send: %v", err))
	}
	a.provider = res.RawResponse
	if !res.Success {
		reason := res.ErrorMessage
		if res.ErrorCode != "" {
			reason = res.ErrorCode + ": " + reason
		}
		return p.fail(ctx, a, domain.LeadError, reason)
	}

	now := p.now()
	if err := p.write(ctx, l, domain.LeadUpdate{
		Status:            statusPtr(domain.LeadSent),
		ProcessedAt:       &now,
		ProviderMessageID: &res.MessageID,
	}); err != nil {
		// The send happened; recovery reclassifies the lead if this write
		// is lost for good.
		logger.Error("lead_update_failed", "lead_id", l.ID, "status", domain.LeadSent, "message_id", res.MessageID, "error", err)
	}
	p.recorder.Count(ctx, c.ID, domain.MetricSent)

	logger.Info("lead_sent", "campaign_id", c.ID, "lead_id", l.ID, "email", l.Email, "message_id", res.MessageID, "attempts", res.Attempts)
	return p.finish(ctx, a, ProcessResult{
		LeadID:    l.ID,
		Outcome:   domain.OutcomeSent,
		Status:    domain.LeadSent,
		MessageID: res.MessageID,
	})
}

func (p *LeadProcessor) compose(c *domain.Campaign, l *domain.Lead) (*domain.EmailMessage, error) {
	unsubURL := p.signer.URL(l.ID)
	vars := content.LeadVars(c, l, unsubURL)

	subject, err := p.renderer.Render(p.spinner.Spin(c.SubjectTemplate), vars)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	body, err := p.renderer.Render(p.spinner.Spin(c.BodyTemplate), vars)
	if err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}

	return &domain.EmailMessage{
		CampaignID:  c.ID,
		LeadID:      l.ID,
		To:          l.Email,
		FromName:    c.FromName,
		FromEmail:   c.FromEmail,
		ReplyTo:     c.ReplyTo,
		Subject:     subject,
		HTMLContent: body,
		TextContent: content.PlainText(body),
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + unsubURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
	}, nil
}

func (p *LeadProcessor) fail(ctx context.Context, a *attempt, status domain.LeadStatus, reason string) ProcessResult {
	now := p.now()
	if err := p.write(ctx, a.lead, domain.LeadUpdate{
		Status:       &status,
		ProcessedAt:  &now,
		ErrorMessage: &reason,
	}); err != nil {
		logger.Error("lead_update_failed", "lead_id", a.lead.ID, "status", status, "error", err)
	}
	p.recorder.Count(ctx, a.campaign.ID, domain.MetricErrors)

	logger.Warn("lead_failed", "campaign_id", a.campaign.ID, "lead_id", a.lead.ID, "email", a.lead.Email, "error", reason)
	return p.finish(ctx, a, ProcessResult{
		LeadID:  a.lead.ID,
		Outcome: domain.OutcomeError,
		Status:  status,
		Error:   reason,
	})
}

// finish writes the attempt's single audit record.
func (p *LeadProcessor) finish(ctx context.Context, a *attempt, r ProcessResult) ProcessResult {
	r.Duration = p.now().Sub(a.started)

	entry := &domain.LogEntry{
		CampaignID:       a.campaign.ID,
		LeadID:           a.lead.ID,
		Email:            a.lead.Email,
		Action:           domain.ActionProcess,
		Outcome:          r.Outcome,
		LeadStatus:       r.Status,
		Subject:          a.subject,
		Body:             a.body,
		VerifierResponse: a.verifier,
		ProviderResponse: a.provider,
		ErrorMessage:     r.Error,
		DurationMs:       r.Duration.Milliseconds(),
	}
	if err := p.recorder.Log(ctx, entry); err != nil {
		logger.Error("audit_write_failed", "campaign_id", a.campaign.ID, "lead_id", a.lead.ID, "error", err)
	}

	p.collect.LeadsProcessed.WithLabelValues(string(r.Outcome)).Inc()
	p.collect.LeadDuration.Observe(r.Duration.Seconds())
	return r
}

// write persists u and mirrors it onto the in-memory lead.
func (p *LeadProcessor) write(ctx context.Context, l *domain.Lead, u domain.LeadUpdate) error {
	if err := p.leads.Update(ctx, l.ID, u); err != nil {
		return fmt.Errorf("update lead %s: %w", l.ID, err)
	}
	u.Apply(l)
	return nil
}

func statusPtr(s domain.LeadStatus) *domain.LeadStatus { return &s }
