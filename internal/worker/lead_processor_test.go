package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

func TestProcess_ValidLeadIsSent(t *testing.T) {
	h := newHarness(t)
	c := h.addCampaign(t, nil)
	l := h.addLead(t, c.ID, "l1", "jane.doe@example.com", 1)

	res := h.processor.Process(context.Background(), c, l, nil)

	assert.Equal(t, domain.OutcomeSent, res.Outcome)
	assert.Equal(t, domain.LeadSent, res.Status)
	assert.Equal(t, "msg-1", res.MessageID)

	stored := h.lead(t, "l1")
	assert.Equal(t, domain.LeadSent, stored.Status)
	assert.Equal(t, "msg-1", stored.ProviderMessageID)
	assert.Equal(t, "Jane", stored.FirstName)
	assert.Equal(t, domain.VerificationValid, stored.VerificationStatus)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Equal(t,
		[]domain.LeadStatus{domain.LeadVerifying, domain.LeadVerified, domain.LeadSending, domain.LeadSent},
		h.leads.path("l1"))

	require.Len(t, h.provider.sent, 1)
	msg := h.provider.sent[0]
	assert.Contains(t, []string{"Hi Jane", "Hello Jane"}, msg.Subject)
	assert.Contains(t, msg.HTMLContent, "https://example.com/unsubscribe/l1?token=")
	assert.Contains(t, msg.Headers["List-Unsubscribe"], "https://example.com/unsubscribe/l1")
	assert.Equal(t, "Hi Jane\nunsubscribe", msg.TextContent)

	entries := h.auditFor("l1")
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionProcess, entries[0].Action)
	assert.Equal(t, msg.Subject, entries[0].Subject)
	assert.Equal(t, `{"status":"valid"}`, entries[0].VerifierResponse)
	assert.Equal(t, `{"ok":true}`, entries[0].ProviderResponse)

	global, _ := h.metrics.Snapshot(context.Background(), domain.MetricScopeGlobal)
	scoped, _ := h.metrics.Snapshot(context.Background(), domain.CampaignScope(c.ID))
	assert.Equal(t, int64(1), global[domain.MetricSent])
	assert.Equal(t, int64(1), scoped[domain.MetricSent])
}

func TestProcess_VerificationBranches(t *testing.T) {
	tests := []struct {
		name          string
		result        *domain.VerificationResult
		allowCatchAll bool
		wantStatus    domain.LeadStatus
		wantOutcome   domain.Outcome
		wantMetric    string
	}{
		{
			name:        "greylisted",
			result:      &domain.VerificationResult{Status: domain.VerificationUnknown, IsGreylisted: true, RetryAfterHours: 4},
			wantStatus:  domain.LeadRisky,
			wantOutcome: domain.OutcomeSkipped,
			wantMetric:  domain.MetricRisky,
		},
		{
			name:        "catch-all disallowed",
			result:      &domain.VerificationResult{Status: domain.VerificationCatchAll},
			wantStatus:  domain.LeadRisky,
			wantOutcome: domain.OutcomeSkipped,
			wantMetric:  domain.MetricRisky,
		},
		{
			name:          "catch-all allowed",
			result:        &domain.VerificationResult{Status: domain.VerificationCatchAll},
			allowCatchAll: true,
			wantStatus:    domain.LeadSent,
			wantOutcome:   domain.OutcomeSent,
			wantMetric:    domain.MetricSent,
		},
		{
			name:        "invalid",
			result:      &domain.VerificationResult{Status: domain.VerificationInvalid, Diagnosis: "mailbox does not exist"},
			wantStatus:  domain.LeadInvalid,
			wantOutcome: domain.OutcomeSkipped,
			wantMetric:  domain.MetricInvalid,
		},
		{
			name:        "unknown",
			result:      &domain.VerificationResult{Status: domain.VerificationUnknown},
			wantStatus:  domain.LeadInvalid,
			wantOutcome: domain.OutcomeSkipped,
			wantMetric:  domain.MetricInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			c := h.addCampaign(t, func(c *domain.Campaign) { c.AllowCatchAll = tt.allowCatchAll })
			l := h.addLead(t, c.ID, "l1", "x@example.com", 1)
			h.verifier.results["x@example.com"] = tt.result

			res := h.processor.Process(context.Background(), c, l, nil)

			assert.Equal(t, tt.wantOutcome, res.Outcome)
			stored := h.lead(t, "l1")
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.Len(t, h.auditFor("l1"), 1)

			scoped, _ := h.metrics.Snapshot(context.Background(), domain.CampaignScope(c.ID))
			assert.Equal(t, int64(1), scoped[tt.wantMetric])
			if tt.wantOutcome == domain.OutcomeSkipped {
				assert.Equal(t, int64(1), scoped[domain.MetricSkipped])
				assert.Empty(t, h.provider.sent)
				assert.NotEmpty(t, stored.ErrorMessage)
			}
		})
	}
}

func TestProcess_GreylistRecordsRetryAfter(t *testing.T) {
	h := newHarness(t)
	c := h.addCampaign(t, nil)
	l := h.addLead(t, c.ID, "l1", "x@example.com", 1)
	h.verifier.results["x@example.com"] = &domain.VerificationResult{Status: domain.VerificationUnknown, IsGreylisted: true, RetryAfterHours: 4}

	before := time.Now()
	h.processor.Process(context.Background(), c, l, nil)

	stored := h.lead(t, "l1")
	require.NotNil(t, stored.RetryAfter)
	assert.WithinDuration(t, before.Add(4*time.Hour), *stored.RetryAfter, time.Minute)
}

func TestProcess_SendFailureMarksError(t *testing.T) {
	h := newHarness(t)
	c := h.addCampaign(t, nil)
	l := h.addLead(t, c.ID, "l1", "x@example.com", 1)
	h.provider.fail["x@example.com"] = &domain.SendResult{ErrorCode: "MessageRejected", ErrorMessage: "Email address is not verified", RawResponse: "rejected"}

	res := h.processor.Process(context.Background(), c, l, nil)

	assert.Equal(t, domain.OutcomeError, res.Outcome)
	stored := h.lead(t, "l1")
	assert.Equal(t, domain.LeadError, stored.Status)
	assert.Equal(t, "MessageRejected: Email address is not verified", stored.ErrorMessage)
	assert.Equal(t,
		[]domain.LeadStatus{domain.LeadVerifying, domain.LeadVerified, domain.LeadSending, domain.LeadError},
		h.leads.path("l1"))

	entries := h.auditFor("l1")
	require.Len(t, entries, 1)
	assert.Equal(t, "rejected", entries[0].ProviderResponse)
	assert.Equal(t, domain.CounterDelta{Errors: 1}, res.Delta())
}

func TestProcess_VerifierErrorMarksError(t *testing.T) {
	h := newHarness(t)
	c := h.addCampaign(t, nil)
	l := h.addLead(t, c.ID, "l1", "x@example.com", 1)
	h.verifier.errs["x@example.com"] = errors.New("verifier unavailable")

	res := h.processor.Process(context.Background(), c, l, nil)

	assert.Equal(t, domain.OutcomeError, res.Outcome)
	assert.Equal(t, domain.LeadError, h.lead(t, "l1").Status)
	assert.Empty(t, h.provider.sent)
	assert.Len(t, h.auditFor("l1"), 1)
	assert.Equal(t, []int{3}, h.verifier.retries)
}

func TestProcess_ReusesFreshStoredVerification(t *testing.T) {
	h := newHarness(t)
	c := h.addCampaign(t, nil)
	verifiedAt := time.Now().Add(-time.Hour)
	l := h.addLead(t, c.ID, "l1", "x@example.com", 1)
	require.NoError(t, h.leads.LeadRepo.Update(context.Background(), "l1", domain.LeadUpdate{
		Status:             statusPtr(domain.LeadVerified),
		VerificationStatus: strPtr(domain.VerificationValid),
		VerifiedAt:         &verifiedAt,
	}))
	l = h.lead(t, l.ID)

	res := h.processor.Process(context.Background(), c, l, nil)

	assert.Equal(t, domain.OutcomeSent, res.Outcome)
	assert.Zero(t, h.verifier.callCount())
}

func TestProcess_ReverifiesStaleStoredVerification(t *testing.T) {
	h := newHarness(t)
	c := h.addCampaign(t, nil)
	verifiedAt := time.Now().Add(-48 * time.Hour)
	h.addLead(t, c.ID, "l1", "x@example.com", 1)
	require.NoError(t, h.leads.LeadRepo.Update(context.Background(), "l1", domain.LeadUpdate{
		Status:             statusPtr(domain.LeadVerified),
		VerificationStatus: strPtr(domain.VerificationValid),
		VerifiedAt:         &verifiedAt,
	}))
	h.verifier.set("x@example.com", domain.VerificationInvalid)

	res := h.processor.Process(context.Background(), c, h.lead(t, "l1"), nil)

	assert.Equal(t, domain.OutcomeSkipped, res.Outcome)
	assert.Equal(t, 1, h.verifier.callCount())
	assert.Equal(t, domain.LeadInvalid, h.lead(t, "l1").Status)
}

func TestProcess_PreverifiedLeadSkipsVerifier(t *testing.T) {
	h := newHarness(t)
	c := h.addCampaign(t, nil)
	l := h.addLead(t, c.ID, "l1", "x@example.com", 1)

	verdict, done, err := h.processor.Verify(context.Background(), c, l, 1)
	require.NoError(t, err)
	require.Nil(t, done)
	require.NotNil(t, verdict)
	assert.Equal(t, domain.LeadVerified, h.lead(t, "l1").Status)

	res := h.processor.Process(context.Background(), c, l, verdict)

	assert.Equal(t, domain.OutcomeSent, res.Outcome)
	assert.Equal(t, 1, h.verifier.callCount())
	assert.Equal(t,
		[]domain.LeadStatus{domain.LeadVerifying, domain.LeadVerified, domain.LeadSending, domain.LeadSent},
		h.leads.path("l1"))
	assert.Len(t, h.auditFor("l1"), 1)
}

func TestProcess_TemplateErrorMarksError(t *testing.T) {
	h := newHarness(t)
	c := h.addCampaign(t, func(c *domain.Campaign) { c.BodyTemplate = "{% nosuchtag %}" })
	l := h.addLead(t, c.ID, "l1", "x@example.com", 1)

	res := h.processor.Process(context.Background(), c, l, nil)

	assert.Equal(t, domain.OutcomeError, res.Outcome)
	assert.Equal(t, domain.LeadError, h.lead(t, "l1").Status)
	assert.Empty(t, h.provider.sent)
}

func strPtr(s string) *string { return &s }
