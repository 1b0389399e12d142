package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Tracking       TrackingConfig       `yaml:"tracking"`
	Fees           FeesConfig           `yaml:"fees"`
	Payments       PaymentsConfig       `yaml:"payments"`
	Tasks          TasksConfig          `yaml:"tasks"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	Statements     StatementsConfig     `yaml:"statements"`
	Integrations   IntegrationsConfig   `yaml:"integrations"`
	AWS            AWSConfig            `yaml:"aws"`
	Log            LogConfig            `yaml:"log"`
}

// AWSConfig holds optional static keys. When empty the default credential
// chain is used.
type AWSConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Static reports whether explicit keys were configured.
func (a AWSConfig) Static() bool {
	return a.AccessKeyID != "" && a.SecretAccessKey != ""
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int      `yaml:"port"`
	Host            string   `yaml:"host"`
	TrackingPort    int      `yaml:"tracking_port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ShutdownSeconds int      `yaml:"shutdown_seconds"`
}

// Addr returns host:port for the API listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TrackingAddr returns host:port for the tracking listener.
func (s ServerConfig) TrackingAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.TrackingPort)
}

// ShutdownTimeout is the graceful shutdown budget.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis settings for the code cache and distributed locks.
// An empty URL disables both.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// TrackingConfig holds link generation and code cache settings
type TrackingConfig struct {
	BaseURL           string `yaml:"base_url"`
	ShortLinkBaseURL  string `yaml:"short_link_base_url"`
	DefaultLandingURL string `yaml:"default_landing_url"`
	CodeCacheTTLSecs  int    `yaml:"code_cache_ttl_seconds"`
}

// CodeCacheTTL is how long resolved codes stay cached.
func (t TrackingConfig) CodeCacheTTL() time.Duration {
	return time.Duration(t.CodeCacheTTLSecs) * time.Second
}

// FeesConfig echoes the fee schedule. The rates are fixed in the money
// package; Load rejects a file that disagrees with them.
type FeesConfig struct {
	PlatformPercent   float64 `yaml:"platform_percent"`
	ProcessingPercent float64 `yaml:"processing_percent"`
}

// Fee schedule applied by the money package.
const (
	PlatformFeePercent   = 5.0
	ProcessingFeePercent = 2.9
)

// PaymentsConfig holds the Stripe gateway settings
type PaymentsConfig struct {
	StripeSecretKey     string `yaml:"stripe_secret_key"`
	StripeWebhookSecret string `yaml:"stripe_webhook_secret"`
	SuccessURL          string `yaml:"success_url"`
	CancelURL           string `yaml:"cancel_url"`
	Currency            string `yaml:"currency"`
}

// Enabled reports whether a gateway key is configured.
func (p PaymentsConfig) Enabled() bool { return p.StripeSecretKey != "" }

// TasksConfig selects the background task transport
type TasksConfig struct {
	Backend          string `yaml:"backend"` // "memory" or "sqs"
	QueueURL         string `yaml:"queue_url"`
	Region           string `yaml:"region"`
	Workers          int    `yaml:"workers"`
	Buffer           int    `yaml:"buffer"`
	MaxAttempts      int    `yaml:"max_attempts"`
	BaseBackoffMilli int    `yaml:"base_backoff_ms"`
}

// BaseBackoff is the first retry delay.
func (t TasksConfig) BaseBackoff() time.Duration {
	return time.Duration(t.BaseBackoffMilli) * time.Millisecond
}

// ReconciliationConfig holds the ledger audit schedule
type ReconciliationConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Schedule       string `yaml:"schedule"`
	LockTTLMinutes int    `yaml:"lock_ttl_minutes"`
}

// LockTTL bounds how long one run may hold the lock.
func (r ReconciliationConfig) LockTTL() time.Duration {
	return time.Duration(r.LockTTLMinutes) * time.Minute
}

// StatementsConfig holds the S3 statement export settings. An empty bucket
// disables export.
type StatementsConfig struct {
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	URLTTLMinutes int    `yaml:"url_ttl_minutes"`
}

// URLTTL is the presigned download link lifetime.
func (s StatementsConfig) URLTTL() time.Duration {
	return time.Duration(s.URLTTLMinutes) * time.Minute
}

// IntegrationsConfig holds outbound conversion API settings
type IntegrationsConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Retries        int    `yaml:"retries"`
	GA4URL         string `yaml:"ga4_url"`
	MetaBaseURL    string `yaml:"meta_base_url"`
}

// Timeout is the per-request HTTP timeout.
func (i IntegrationsConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It defaults to true.
func (l LogConfig) Redact() bool {
	return l.RedactPII == nil || *l.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.TrackingPort == 0 {
		cfg.Server.TrackingPort = 8081
	}
	if cfg.Server.ShutdownSeconds == 0 {
		cfg.Server.ShutdownSeconds = 30
	}

	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}

	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = "http://localhost:8081"
	}
	if cfg.Tracking.ShortLinkBaseURL == "" {
		cfg.Tracking.ShortLinkBaseURL = strings.TrimRight(cfg.Tracking.BaseURL, "/") + "/s/"
	}
	if cfg.Tracking.CodeCacheTTLSecs == 0 {
		cfg.Tracking.CodeCacheTTLSecs = 300
	}

	if cfg.Fees.PlatformPercent == 0 {
		cfg.Fees.PlatformPercent = PlatformFeePercent
	}
	if cfg.Fees.ProcessingPercent == 0 {
		cfg.Fees.ProcessingPercent = ProcessingFeePercent
	}

	if cfg.Payments.Currency == "" {
		cfg.Payments.Currency = "USD"
	}

	if cfg.Tasks.Backend == "" {
		cfg.Tasks.Backend = "memory"
	}
	if cfg.Tasks.Region == "" {
		cfg.Tasks.Region = "us-east-1"
	}
	if cfg.Tasks.Workers == 0 {
		cfg.Tasks.Workers = 4
	}
	if cfg.Tasks.Buffer == 0 {
		cfg.Tasks.Buffer = 1024
	}
	if cfg.Tasks.MaxAttempts == 0 {
		cfg.Tasks.MaxAttempts = 5
	}
	if cfg.Tasks.BaseBackoffMilli == 0 {
		cfg.Tasks.BaseBackoffMilli = 500
	}

	if cfg.Reconciliation.Schedule == "" {
		cfg.Reconciliation.Schedule = "*/15 * * * *"
	}
	if cfg.Reconciliation.LockTTLMinutes == 0 {
		cfg.Reconciliation.LockTTLMinutes = 10
	}

	if cfg.Statements.Prefix == "" {
		cfg.Statements.Prefix = "statements"
	}
	if cfg.Statements.Region == "" {
		cfg.Statements.Region = cfg.Tasks.Region
	}
	if cfg.Statements.URLTTLMinutes == 0 {
		cfg.Statements.URLTTLMinutes = 15
	}

	if cfg.Integrations.TimeoutSeconds == 0 {
		cfg.Integrations.TimeoutSeconds = 10
	}
	if cfg.Integrations.Retries == 0 {
		cfg.Integrations.Retries = 3
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks values that cannot be defaulted.
func (cfg *Config) Validate() error {
	if cfg.Fees.PlatformPercent != PlatformFeePercent || cfg.Fees.ProcessingPercent != ProcessingFeePercent {
		return fmt.Errorf("config: fees are fixed at %.1f%% platform and %.1f%% processing",
			PlatformFeePercent, ProcessingFeePercent)
	}
	switch cfg.Tasks.Backend {
	case "memory":
	case "sqs":
		if cfg.Tasks.QueueURL == "" {
			return fmt.Errorf("config: tasks.queue_url is required for the sqs backend")
		}
	default:
		return fmt.Errorf("config: unknown tasks.backend %q", cfg.Tasks.Backend)
	}
	if cfg.Tasks.Workers < 1 {
		return fmt.Errorf("config: tasks.workers must be positive")
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS. An empty
// path skips the file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg = Default()
	} else if cfg, err = Load(path); err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("TRACKING_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: TRACKING_PORT: %w", err)
		}
		cfg.Server.TrackingPort = port
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	// Stripe overrides
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Payments.StripeSecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Payments.StripeWebhookSecret = v
	}

	// Task queue overrides
	if v := os.Getenv("SQS_TASK_QUEUE_URL"); v != "" {
		cfg.Tasks.QueueURL = v
		cfg.Tasks.Backend = "sqs"
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Tasks.Region = v
	}

	// Tracking overrides
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("SHORT_LINK_BASE_URL"); v != "" {
		cfg.Tracking.ShortLinkBaseURL = v
	}

	if v := os.Getenv("STATEMENT_S3_BUCKET"); v != "" {
		cfg.Statements.Bucket = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
