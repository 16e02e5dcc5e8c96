package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-orchestrator/internal/content"
	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/distlock"
	"github.com/ignite/outreach-orchestrator/internal/repository/memory"
	"github.com/ignite/outreach-orchestrator/internal/service/audit"
)

type fakeVerifier struct {
	mu      sync.Mutex
	results map[string]*domain.VerificationResult
	errs    map[string]error
	calls   []string
	retries []int
	hook    func(email string)
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{
		results: make(map[string]*domain.VerificationResult),
		errs:    make(map[string]error),
	}
}

func (v *fakeVerifier) set(email, status string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.results[email] = &domain.VerificationResult{
		IsValid:     status == domain.VerificationValid,
		Status:      status,
		RawResponse: fmt.Sprintf(`{"status":%q}`, status),
	}
}

func (v *fakeVerifier) Verify(_ context.Context, email string, maxRetries int) (*domain.VerificationResult, error) {
	v.mu.Lock()
	v.calls = append(v.calls, email)
	v.retries = append(v.retries, maxRetries)
	hook := v.hook
	res, ok := v.results[email]
	err := v.errs[email]
	v.mu.Unlock()

	if hook != nil {
		hook(email)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return &domain.VerificationResult{IsValid: true, Status: domain.VerificationValid, RawResponse: `{"status":"valid"}`}, nil
	}
	cp := *res
	return &cp, nil
}

func (v *fakeVerifier) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.calls)
}

type fakeProvider struct {
	mu   sync.Mutex
	sent []*domain.EmailMessage
	fail map[string]*domain.SendResult
	hook func(msg *domain.EmailMessage)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{fail: make(map[string]*domain.SendResult)}
}

func (p *fakeProvider) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	p.mu.Lock()
	hook := p.hook
	failure := p.fail[msg.To]
	p.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	if failure != nil {
		cp := *failure
		return &cp, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return &domain.SendResult{
		Success:     true,
		MessageID:   fmt.Sprintf("msg-%d", len(p.sent)),
		Attempts:    1,
		RawResponse: `{"ok":true}`,
		SentAt:      time.Now(),
	}, nil
}

func (p *fakeProvider) sentTo() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		out = append(out, m.To)
	}
	return out
}

// statusLog records every status written per lead.
type statusLog struct {
	*memory.LeadRepo
	mu      sync.Mutex
	history map[string][]domain.LeadStatus
}

func newStatusLog() *statusLog {
	return &statusLog{LeadRepo: memory.NewLeadRepo(), history: make(map[string][]domain.LeadStatus)}
}

func (s *statusLog) Update(ctx context.Context, id string, u domain.LeadUpdate) error {
	if u.Status != nil {
		s.mu.Lock()
		s.history[id] = append(s.history[id], *u.Status)
		s.mu.Unlock()
	}
	return s.LeadRepo.Update(ctx, id, u)
}

func (s *statusLog) path(id string) []domain.LeadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LeadStatus(nil), s.history[id]...)
}

type harness struct {
	campaigns *memory.CampaignRepo
	leads     *statusLog
	logs      *memory.AuditRepo
	metrics   *memory.MetricRepo
	verifier  *fakeVerifier
	provider  *fakeProvider
	lockStore *distlock.MemoryStore
	locks     *distlock.Manager
	collect   *Collectors
	processor *LeadProcessor
	recovery  *RecoveryScanner
	runner    *CampaignRunner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		campaigns: memory.NewCampaignRepo(),
		leads:     newStatusLog(),
		logs:      memory.NewAuditRepo(),
		metrics:   memory.NewMetricRepo(),
		verifier:  newFakeVerifier(),
		provider:  newFakeProvider(),
		lockStore: distlock.NewMemoryStore(),
		collect:   NewCollectors(prometheus.NewRegistry()),
	}
	h.locks = distlock.NewManager(h.lockStore, distlock.Options{InstanceID: "worker-test"})

	recorder := audit.NewRecorder(h.logs, h.metrics)
	h.processor = NewLeadProcessor(h.leads, h.verifier, h.provider, recorder,
		content.NewRenderer(), content.NewSpinner(42),
		content.NewUnsubscribeSigner("secret", "https://example.com/unsubscribe"),
		h.collect, ProcessorOptions{VerifyRetries: 3})
	h.recovery = NewRecoveryScanner(h.leads, recorder, h.collect, 10*time.Minute, nil)
	h.runner = NewCampaignRunner(h.campaigns, h.leads, h.locks, h.processor, h.recovery,
		NewDelayCalculator(7), h.collect, RunnerOptions{PrefetchRetries: 1})
	return h
}

func (h *harness) addCampaign(t *testing.T, mutate func(c *domain.Campaign)) *domain.Campaign {
	t.Helper()
	c := &domain.Campaign{
		ID:              "camp-1",
		Name:            "Spring outreach",
		Status:          domain.CampaignQueued,
		FromName:        "Dana",
		FromEmail:       "dana@sender.example",
		SubjectTemplate: "{Hi|Hello} {{ first_name }}",
		BodyTemplate:    `<p>Hi {{ first_name | default: "there" }}</p><a href="{{ unsubscribe_url }}">unsubscribe</a>`,
		MinDelayMs:      1,
		MaxDelayMs:      2,
		CreatedAt:       time.Now(),
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, h.campaigns.Create(context.Background(), c))
	return c
}

func (h *harness) addLead(t *testing.T, campaignID, id, email string, pos int64) *domain.Lead {
	t.Helper()
	l := &domain.Lead{
		ID:            id,
		CampaignID:    campaignID,
		Email:         email,
		QueuePosition: pos,
		Status:        domain.LeadQueued,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, h.leads.Create(context.Background(), l))
	return l
}

func (h *harness) lead(t *testing.T, id string) *domain.Lead {
	t.Helper()
	l, err := h.leads.Get(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (h *harness) campaign(t *testing.T, id string) *domain.Campaign {
	t.Helper()
	c, err := h.campaigns.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (h *harness) auditFor(leadID string) []domain.LogEntry {
	var out []domain.LogEntry
	for _, e := range h.logs.All() {
		if e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out
}
