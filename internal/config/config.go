package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/outreach-orchestrator/internal/pkg/apperrors"
)

// Config holds all configuration for the orchestrator
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Store        StoreConfig        `yaml:"store"`
	Lock         LockConfig         `yaml:"lock"`
	SES          SESConfig          `yaml:"ses"`
	Verification VerificationConfig `yaml:"verification"`
	Pacing       PacingConfig       `yaml:"pacing"`
	Recovery     RecoveryConfig     `yaml:"recovery"`
	Unsubscribe  UnsubscribeConfig  `yaml:"unsubscribe"`
	Audit        AuditConfig        `yaml:"audit"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	SQS          SQSConfig          `yaml:"sqs"`
}

// ServerConfig holds HTTP control plane settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StoreConfig selects the document store for campaigns, leads, logs and metrics.
type StoreConfig struct {
	Backend     string `yaml:"backend"` // postgres | memory
	DatabaseURL string `yaml:"database_url"`
}

// LockConfig selects the distributed lock backend.
type LockConfig struct {
	Backend        string `yaml:"backend"` // postgres | dynamodb | redis | memory
	InstanceID     string `yaml:"instance_id"`
	TTLSeconds     int    `yaml:"ttl_seconds"`
	RefreshSeconds int    `yaml:"refresh_seconds"`
	DynamoDBTable  string `yaml:"dynamodb_table"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
}

// TTL returns the lock lifetime.
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RefreshInterval returns how often a held lock is extended.
func (c LockConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// SESConfig holds AWS SES settings
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	MaxRetries       int    `yaml:"max_retries"`
}

// Timeout returns the per-call timeout
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// VerificationConfig holds email verification provider settings.
type VerificationConfig struct {
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	MaxRetries      int    `yaml:"max_retries"`
	PrefetchRetries int    `yaml:"prefetch_retries"`
	MaxAgeHours     int    `yaml:"max_age_hours"`
}

// Timeout returns the per-call timeout
func (c VerificationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxAge is how long a stored verification result may be reused.
func (c VerificationConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// PacingConfig holds fallback pacing bounds for campaigns that set none.
type PacingConfig struct {
	DefaultMinDelayMs int64 `yaml:"default_min_delay_ms"`
	DefaultMaxDelayMs int64 `yaml:"default_max_delay_ms"`
}

// RecoveryConfig holds stranded-lead recovery settings.
type RecoveryConfig struct {
	StaleMinutes int `yaml:"stale_minutes"`
}

// StaleAfter returns the SENDING age after which a lead is considered stranded.
func (c RecoveryConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleMinutes) * time.Minute
}

// UnsubscribeConfig holds the signed unsubscribe link settings.
type UnsubscribeConfig struct {
	BaseURL string `yaml:"base_url"`
	Secret  string `yaml:"secret"`
}

// AuditConfig selects where audit records are written.
type AuditConfig struct {
	Sink     string `yaml:"sink"` // postgres | s3 | memory
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	S3Region string `yaml:"s3_region"`
}

// MetricsConfig selects the counter store.
type MetricsConfig struct {
	Backend   string `yaml:"backend"` // postgres | redis | memory
	RedisAddr string `yaml:"redis_addr"`
}

// SQSConfig holds the trigger queue settings.
type SQSConfig struct {
	QueueURL             string `yaml:"queue_url"`
	Region               string `yaml:"region"`
	WaitTimeSeconds      int32  `yaml:"wait_time_seconds"`
	MaxMessages          int32  `yaml:"max_messages"`
	VisibilityTimeoutSec int32  `yaml:"visibility_timeout_seconds"`
}

// Load reads configuration from a YAML file and applies defaults
func Load(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "postgres"
	}
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = cfg.Store.Backend
	}
	if cfg.Lock.TTLSeconds == 0 {
		cfg.Lock.TTLSeconds = 120
	}
	if cfg.Lock.RefreshSeconds == 0 {
		cfg.Lock.RefreshSeconds = 30
	}
	if cfg.Lock.DynamoDBTable == "" {
		cfg.Lock.DynamoDBTable = "campaign_locks"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.MaxRetries == 0 {
		cfg.SES.MaxRetries = 3
	}
	if cfg.Verification.TimeoutSeconds == 0 {
		cfg.Verification.TimeoutSeconds = 30
	}
	if cfg.Verification.MaxRetries == 0 {
		cfg.Verification.MaxRetries = 3
	}
	if cfg.Verification.PrefetchRetries == 0 {
		cfg.Verification.PrefetchRetries = 1
	}
	if cfg.Verification.MaxAgeHours == 0 {
		cfg.Verification.MaxAgeHours = 24
	}
	if cfg.Pacing.DefaultMinDelayMs == 0 {
		cfg.Pacing.DefaultMinDelayMs = 30000
	}
	if cfg.Pacing.DefaultMaxDelayMs == 0 {
		cfg.Pacing.DefaultMaxDelayMs = 120000
	}
	if cfg.Recovery.StaleMinutes == 0 {
		cfg.Recovery.StaleMinutes = 10
	}
	if cfg.Audit.Sink == "" {
		cfg.Audit.Sink = cfg.Store.Backend
	}
	if cfg.Audit.S3Prefix == "" {
		cfg.Audit.S3Prefix = "audit"
	}
	if cfg.Audit.S3Region == "" {
		cfg.Audit.S3Region = cfg.SES.Region
	}
	if cfg.Metrics.Backend == "" {
		cfg.Metrics.Backend = cfg.Store.Backend
	}
	if cfg.SQS.Region == "" {
		cfg.SQS.Region = cfg.SES.Region
	}
	if cfg.SQS.WaitTimeSeconds == 0 {
		cfg.SQS.WaitTimeSeconds = 20
	}
	if cfg.SQS.MaxMessages == 0 {
		cfg.SQS.MaxMessages = 1
	}
	if cfg.SQS.VisibilityTimeoutSec == 0 {
		cfg.SQS.VisibilityTimeoutSec = 900
	}
}

// LoadFromEnv loads config from file and overrides with environment variables
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		loaded, err := readFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
	}
	if v := os.Getenv("LOCK_BACKEND"); v != "" {
		cfg.Lock.Backend = v
	}
	if v := os.Getenv("INSTANCE_ID"); v != "" {
		cfg.Lock.InstanceID = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Lock.RedisAddr = v
		if cfg.Metrics.RedisAddr == "" {
			cfg.Metrics.RedisAddr = v
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Lock.RedisPassword = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("VERIFIER_BASE_URL"); v != "" {
		cfg.Verification.BaseURL = v
	}
	if v := os.Getenv("VERIFIER_API_KEY"); v != "" {
		cfg.Verification.APIKey = v
	}
	if v := os.Getenv("UNSUBSCRIBE_SECRET"); v != "" {
		cfg.Unsubscribe.Secret = v
	}
	if v := os.Getenv("UNSUBSCRIBE_BASE_URL"); v != "" {
		cfg.Unsubscribe.BaseURL = v
	}
	if v := os.Getenv("AUDIT_S3_BUCKET"); v != "" {
		cfg.Audit.S3Bucket = v
	}
	if v := os.Getenv("SQS_QUEUE_URL"); v != "" {
		cfg.SQS.QueueURL = v
	}
	if v := os.Getenv("RECOVERY_STALE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Recovery.StaleMinutes = n
		}
	}

	// Defaults run last so derived backends follow env overrides.
	cfg.applyDefaults()
	return cfg, nil
}

// Validate reports settings the orchestrator cannot run without.
func (c *Config) Validate() error {
	const op = "config.validate"
	if c.Unsubscribe.Secret == "" {
		return apperrors.Configuration(op, "unsubscribe.secret is required")
	}
	if c.Unsubscribe.BaseURL == "" {
		return apperrors.Configuration(op, "unsubscribe.base_url is required")
	}
	if c.Store.Backend == "postgres" && c.Store.DatabaseURL == "" {
		return apperrors.Configuration(op, "store.database_url is required for the postgres backend")
	}
	switch c.Lock.Backend {
	case "postgres", "memory":
	case "dynamodb":
		if c.Lock.DynamoDBTable == "" {
			return apperrors.Configuration(op, "lock.dynamodb_table is required")
		}
	case "redis":
		if c.Lock.RedisAddr == "" {
			return apperrors.Configuration(op, "lock.redis_addr is required")
		}
	default:
		return apperrors.Configuration(op, "unknown lock backend %q", c.Lock.Backend)
	}
	if c.Audit.Sink == "s3" && c.Audit.S3Bucket == "" {
		return apperrors.Configuration(op, "audit.s3_bucket is required for the s3 sink")
	}
	if c.Metrics.Backend == "redis" && c.Metrics.RedisAddr == "" {
		return apperrors.Configuration(op, "metrics.redis_addr is required for the redis backend")
	}
	if c.Pacing.DefaultMinDelayMs <= 0 || c.Pacing.DefaultMaxDelayMs < c.Pacing.DefaultMinDelayMs {
		return apperrors.Configuration(op, "pacing bounds are invalid")
	}
	return nil
}
