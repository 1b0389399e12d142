// Package bootstrap builds the shared dependency graph for the server,
// worker and tracking binaries.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/ignite/creatorhub/internal/config"
	"github.com/ignite/creatorhub/internal/integrations"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/repository/postgres"
	"github.com/ignite/creatorhub/internal/service/attribution"
	"github.com/ignite/creatorhub/internal/service/campaign"
	"github.com/ignite/creatorhub/internal/service/capital"
	"github.com/ignite/creatorhub/internal/service/escrow"
	"github.com/ignite/creatorhub/internal/service/lifttest"
	"github.com/ignite/creatorhub/internal/tasks"
	"github.com/ignite/creatorhub/internal/tracking/codecache"
	"github.com/ignite/creatorhub/internal/worker"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// ConfigureLogging applies the log section to the process logger.
func ConfigureLogging(cfg config.LogConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}

// OpenDB opens and pings the PostgreSQL pool.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required (DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis connects to Redis. It returns nil when no URL is configured or
// the server is unreachable; callers fall back to Postgres advisory locks
// and uncached code lookups.
func OpenRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, continuing without cache", "error", err.Error())
		client.Close()
		return nil
	}
	return client
}

// AWS loads the SDK config for region, preferring static keys when set.
func AWS(ctx context.Context, region string, creds config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if creds.Static() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// Services is the wired service layer.
type Services struct {
	Ledger       *postgres.LedgerStore
	Integrations *postgres.IntegrationRepo
	Escrow       *escrow.Service
	Campaigns    *campaign.Service
	Attribution  *attribution.Service
	LiftTests    *lifttest.Service
	Forwarder    *integrations.Forwarder
}

// NewServices builds every service over db. rdb may be nil.
func NewServices(cfg *config.Config, db *sql.DB, rdb *redis.Client, queue tasks.Queue) *Services {
	ledgerStore := postgres.NewLedgerStore(db)
	integrationRepo := postgres.NewIntegrationRepo(db)
	capitalSvc := capital.NewService()

	opts := []attribution.Option{attribution.WithIntegrations(integrationRepo)}
	if rdb != nil {
		opts = append(opts, attribution.WithCodeCache(codecache.New(rdb, cfg.Tracking.CodeCacheTTL())))
	}
	attrSvc := attribution.NewService(postgres.NewAttributionRepo(db), queue, attribution.Config{
		ShortLinkBaseURL:  cfg.Tracking.ShortLinkBaseURL,
		DefaultLandingURL: cfg.Tracking.DefaultLandingURL,
		Currency:          cfg.Payments.Currency,
	}, opts...)

	return &Services{
		Ledger:       ledgerStore,
		Integrations: integrationRepo,
		Escrow:       escrow.NewService(ledgerStore, capitalSvc),
		Campaigns:    campaign.NewService(ledgerStore, capitalSvc),
		Attribution:  attrSvc,
		LiftTests:    lifttest.NewService(postgres.NewLiftTestRepo(db), lifttest.WithWindowSource(attrSvc)),
		Forwarder: integrations.NewForwarder(integrationRepo, integrations.DefaultSenders(integrations.Options{
			Timeout:     cfg.Integrations.Timeout(),
			Retries:     cfg.Integrations.Retries,
			GA4URL:      cfg.Integrations.GA4URL,
			MetaBaseURL: cfg.Integrations.MetaBaseURL,
		})...),
	}
}

// RegisterHandlers binds the task handlers to the dispatcher.
func (s *Services) RegisterHandlers(d *tasks.Dispatcher) {
	worker.RegisterTaskHandlers(d, s.Attribution, s.LiftTests, s.Forwarder)
}

// TaskQueue is the producer side plus a shutdown hook.
type TaskQueue struct {
	tasks.Queue
	Stop func()
}

// NewTaskQueue returns an in-process queue draining into d, or an SQS
// publisher when the sqs backend is configured. The in-process queue is
// started immediately.
func NewTaskQueue(ctx context.Context, cfg config.TasksConfig, creds config.AWSConfig, d *tasks.Dispatcher) (*TaskQueue, error) {
	switch cfg.Backend {
	case "sqs":
		client, err := NewSQSClient(ctx, cfg, creds)
		if err != nil {
			return nil, err
		}
		return &TaskQueue{Queue: tasks.NewSQSPublisher(client, cfg.QueueURL), Stop: func() {}}, nil
	default:
		q := tasks.NewMemoryQueue(d, cfg.Buffer, cfg.Workers)
		q.Start(ctx)
		return &TaskQueue{Queue: q, Stop: q.Stop}, nil
	}
}

// NewSQSClient builds the SQS client for the task queue region.
func NewSQSClient(ctx context.Context, cfg config.TasksConfig, creds config.AWSConfig) (*sqs.Client, error) {
	awsCfg, err := AWS(ctx, cfg.Region, creds)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// NewDispatcher builds a dispatcher from the tasks section.
func NewDispatcher(cfg config.TasksConfig) *tasks.Dispatcher {
	return tasks.NewDispatcher(cfg.MaxAttempts, cfg.BaseBackoff())
}
