package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-orchestrator/internal/config"
	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/repository/redisstore"
	"github.com/ignite/outreach-orchestrator/internal/service/campaign"
	"github.com/ignite/outreach-orchestrator/internal/service/lead"
	"github.com/ignite/outreach-orchestrator/internal/worker"
)

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, email string, _ int) (*domain.VerificationResult, error) {
	if email == "bad@example.com" {
		return &domain.VerificationResult{Status: domain.VerificationInvalid}, nil
	}
	return &domain.VerificationResult{IsValid: true, Status: domain.VerificationValid}, nil
}

type stubProvider struct{ sent []string }

func (p *stubProvider) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	p.sent = append(p.sent, msg.To)
	return &domain.SendResult{Success: true, MessageID: "m-" + msg.To, Attempts: 1, SentAt: time.Now()}, nil
}

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Backend = "memory"
	cfg.Lock.Backend = "memory"
	cfg.Metrics.Backend = "memory"
	cfg.Audit.Sink = "memory"
	cfg.Unsubscribe.Secret = "secret"
	cfg.Unsubscribe.BaseURL = "https://example.com/unsubscribe"
	return cfg
}

func TestNewApp_MemoryEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	c, err := a.campaignService().Create(ctx, campaign.CreateInput{
		Name:            "Launch",
		FromName:        "Dana",
		FromEmail:       "dana@sender.example",
		SubjectTemplate: "Hi {{ first_name }}",
		BodyTemplate:    "<p>Hi</p>",
		MinDelayMs:      1,
		MaxDelayMs:      2,
	})
	require.NoError(t, err)

	_, err = a.leadService().Import(ctx, c.ID, []lead.ImportInput{
		{Email: "ann@example.com", FullName: "Ann Lee"},
		{Email: "bad@example.com"},
	})
	require.NoError(t, err)
	require.NoError(t, a.campaignService().Queue(ctx, c.ID))

	provider := &stubProvider{}
	res := a.newRunner(provider, stubVerifier{}).Execute(ctx, c.ID)

	assert.Equal(t, worker.RunCompleted, res.Status, res.Message)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"ann@example.com"}, provider.sent)

	snap, err := a.recorder.Snapshot(ctx, domain.CampaignScope(c.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap[domain.MetricSent])
}

func TestNewApp_RedisMetricsAndLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Lock.Backend = "redis"
	cfg.Lock.RedisAddr = mr.Addr()
	cfg.Metrics.Backend = "redis"
	cfg.Metrics.RedisAddr = mr.Addr()

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &redisstore.MetricRepo{}, a.metrics)
	assert.Len(t, a.redis, 1, "lock and metrics share one client per address")

	res, err := a.locks.Acquire(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.True(t, res.Acquired)
}

func TestNewApp_UnknownBackends(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"store", func(c *config.Config) { c.Store.Backend = "sqlite" }},
		{"metrics", func(c *config.Config) { c.Metrics.Backend = "statsd" }},
		{"audit", func(c *config.Config) { c.Audit.Sink = "kafka" }},
		{"lock", func(c *config.Config) { c.Lock.Backend = "zookeeper" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			tt.mutate(cfg)
			_, err := newApp(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestRunnerRequiresVerifier(t *testing.T) {
	a, err := newApp(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.runner(context.Background())
	assert.ErrorContains(t, err, "verification.base_url")
}

func TestFailedRuns(t *testing.T) {
	assert.NoError(t, failedRuns([]worker.ExecutionResult{
		{Status: worker.RunCompleted}, {Status: worker.RunLocked},
	}))
	assert.EqualError(t, failedRuns([]worker.ExecutionResult{
		{Status: worker.RunCompleted}, {Status: worker.RunError},
	}), "1 of 2 executions failed")
}

func TestExecuteArgs(t *testing.T) {
	t.Cleanup(func() { executeAll = false })

	executeAll = false
	assert.Error(t, executeCmd.Args(executeCmd, nil))
	assert.NoError(t, executeCmd.Args(executeCmd, []string{"camp-1"}))

	executeAll = true
	assert.NoError(t, executeCmd.Args(executeCmd, nil))
	assert.Error(t, executeCmd.Args(executeCmd, []string{"camp-1"}))
}
