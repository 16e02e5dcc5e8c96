package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-orchestrator/internal/config"
	"github.com/ignite/outreach-orchestrator/internal/content"
	"github.com/ignite/outreach-orchestrator/internal/pkg/distlock"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
	"github.com/ignite/outreach-orchestrator/internal/repository/memory"
	"github.com/ignite/outreach-orchestrator/internal/repository/postgres"
	"github.com/ignite/outreach-orchestrator/internal/repository/redisstore"
	"github.com/ignite/outreach-orchestrator/internal/repository/s3archive"
	"github.com/ignite/outreach-orchestrator/internal/service/audit"
	"github.com/ignite/outreach-orchestrator/internal/service/campaign"
	"github.com/ignite/outreach-orchestrator/internal/service/lead"
	"github.com/ignite/outreach-orchestrator/internal/service/sending"
	"github.com/ignite/outreach-orchestrator/internal/ses"
	"github.com/ignite/outreach-orchestrator/internal/verification"
	"github.com/ignite/outreach-orchestrator/internal/worker"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg *config.Config

	db    *sql.DB
	redis map[string]*redis.Client

	campaigns campaign.Repository
	leads     lead.Repository
	logs      audit.LogRepository
	metrics   audit.MetricRepository
	locks     *distlock.Manager

	signer   *content.UnsubscribeSigner
	recorder *audit.Recorder
	registry *prometheus.Registry
}

// newApp opens the configured stores. External providers are only built
// by the commands that send mail.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		redis:    make(map[string]*redis.Client),
		signer:   content.NewUnsubscribeSigner(cfg.Unsubscribe.Secret, cfg.Unsubscribe.BaseURL),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openMetrics(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openAuditSink(ctx); err != nil {
		a.Close()
		return nil, err
	}
	store, err := a.openLockStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.locks = distlock.NewManager(store, distlock.Options{
		InstanceID:      cfg.Lock.InstanceID,
		TTL:             cfg.Lock.TTL(),
		RefreshInterval: cfg.Lock.RefreshInterval(),
	})
	a.recorder = audit.NewRecorder(a.logs, a.metrics)

	logger.Info("orchestrator_wired",
		"store", cfg.Store.Backend,
		"lock", cfg.Lock.Backend,
		"metrics", cfg.Metrics.Backend,
		"audit", cfg.Audit.Sink,
		"instance_id", a.locks.InstanceID())
	return a, nil
}

// Close releases connections.
func (a *app) Close() {
	for addr, c := range a.redis {
		if err := c.Close(); err != nil {
			logger.Warn("redis_close_failed", "addr", addr, "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("db_close_failed", "error", err)
		}
	}
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case "memory":
		a.campaigns = memory.NewCampaignRepo()
		a.leads = memory.NewLeadRepo()
		return nil
	case "postgres":
		db, err := a.postgres(ctx)
		if err != nil {
			return err
		}
		a.campaigns = postgres.NewCampaignRepo(db)
		a.leads = postgres.NewLeadRepo(db)
		return nil
	}
	return fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
}

func (a *app) openMetrics(ctx context.Context) error {
	switch a.cfg.Metrics.Backend {
	case "memory":
		a.metrics = memory.NewMetricRepo()
	case "postgres":
		db, err := a.postgres(ctx)
		if err != nil {
			return err
		}
		a.metrics = postgres.NewMetricRepo(db)
	case "redis":
		client, err := a.redisClient(ctx, a.cfg.Metrics.RedisAddr, a.cfg.Lock.RedisPassword)
		if err != nil {
			return err
		}
		a.metrics = redisstore.NewMetricRepo(client)
	default:
		return fmt.Errorf("unknown metrics backend %q", a.cfg.Metrics.Backend)
	}
	return nil
}

func (a *app) openAuditSink(ctx context.Context) error {
	switch a.cfg.Audit.Sink {
	case "memory":
		a.logs = memory.NewAuditRepo()
	case "postgres":
		db, err := a.postgres(ctx)
		if err != nil {
			return err
		}
		a.logs = postgres.NewAuditRepo(db)
	case "s3":
		awsCfg, err := a.awsConfig(ctx, a.cfg.Audit.S3Region)
		if err != nil {
			return err
		}
		a.logs = s3archive.New(s3.NewFromConfig(awsCfg), a.cfg.Audit.S3Bucket, a.cfg.Audit.S3Prefix)
	default:
		return fmt.Errorf("unknown audit sink %q", a.cfg.Audit.Sink)
	}
	return nil
}

func (a *app) openLockStore(ctx context.Context) (distlock.Store, error) {
	switch a.cfg.Lock.Backend {
	case "memory":
		return distlock.NewMemoryStore(), nil
	case "postgres":
		db, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return distlock.NewPostgresStore(db), nil
	case "redis":
		client, err := a.redisClient(ctx, a.cfg.Lock.RedisAddr, a.cfg.Lock.RedisPassword)
		if err != nil {
			return nil, err
		}
		return distlock.NewRedisStore(client), nil
	case "dynamodb":
		awsCfg, err := a.awsConfig(ctx, a.cfg.SES.Region)
		if err != nil {
			return nil, err
		}
		return distlock.NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), a.cfg.Lock.DynamoDBTable), nil
	}
	return nil, fmt.Errorf("unknown lock backend %q", a.cfg.Lock.Backend)
}

// postgres opens the shared pool once.
func (a *app) postgres(ctx context.Context) (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := sql.Open("postgres", a.cfg.Store.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	a.db = db
	return db, nil
}

// redisClient returns one client per address.
func (a *app) redisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	if c, ok := a.redis[addr]; ok {
		return c, nil
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	a.redis[addr] = c
	return c, nil
}

func (a *app) awsConfig(ctx context.Context, region string) (aws.Config, error) {
	return ses.LoadAWSConfig(ctx, region, a.cfg.SES.AccessKey, a.cfg.SES.SecretKey)
}

func (a *app) campaignService() *campaign.Service {
	return campaign.NewService(a.campaigns).
		WithDefaultPacing(a.cfg.Pacing.DefaultMinDelayMs, a.cfg.Pacing.DefaultMaxDelayMs)
}

func (a *app) leadService() *lead.Service {
	return lead.NewService(a.leads, a.signer)
}

// runner wires the execution loop around the SES sender and the
// verification API.
func (a *app) runner(ctx context.Context) (*worker.CampaignRunner, error) {
	if a.cfg.Verification.BaseURL == "" {
		return nil, fmt.Errorf("verification.base_url is required to execute campaigns")
	}
	client, err := ses.NewClient(ctx, a.cfg.SES)
	if err != nil {
		return nil, err
	}
	provider := ses.NewSender(client, ses.Options{
		ConfigurationSet: a.cfg.SES.ConfigurationSet,
		MaxRetries:       a.cfg.SES.MaxRetries,
		Timeout:          a.cfg.SES.Timeout(),
	})
	verifier := verification.NewClient(a.cfg.Verification.BaseURL, a.cfg.Verification.APIKey,
		a.cfg.Verification.Timeout(), a.cfg.Verification.MaxRetries, nil)
	return a.newRunner(provider, verifier), nil
}

func (a *app) newRunner(provider sending.Provider, verifier sending.Verifier) *worker.CampaignRunner {
	collect := worker.NewCollectors(a.registry)
	seed := time.Now().UnixNano()
	processor := worker.NewLeadProcessor(a.leads, verifier, provider, a.recorder,
		content.NewRenderer(), content.NewSpinner(seed), a.signer, collect,
		worker.ProcessorOptions{
			VerifyRetries:      a.cfg.Verification.MaxRetries,
			VerificationMaxAge: a.cfg.Verification.MaxAge(),
		})
	recovery := worker.NewRecoveryScanner(a.leads, a.recorder, collect, a.cfg.Recovery.StaleAfter(), nil)
	return worker.NewCampaignRunner(a.campaigns, a.leads, a.locks, processor, recovery,
		worker.NewDelayCalculator(seed+1), collect,
		worker.RunnerOptions{PrefetchRetries: a.cfg.Verification.PrefetchRetries})
}

func (a *app) sqsClient(ctx context.Context) (*sqs.Client, error) {
	if a.cfg.SQS.QueueURL == "" {
		return nil, fmt.Errorf("sqs.queue_url is required")
	}
	awsCfg, err := a.awsConfig(ctx, a.cfg.SQS.Region)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(awsCfg), nil
}
