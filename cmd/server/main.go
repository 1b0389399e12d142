package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/creatorhub/internal/api"
	"github.com/ignite/creatorhub/internal/bootstrap"
	"github.com/ignite/creatorhub/internal/config"
	"github.com/ignite/creatorhub/internal/payments/stripegw"
	"github.com/ignite/creatorhub/internal/pkg/distlock"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/report"
	"github.com/ignite/creatorhub/internal/service/payments"
	"github.com/ignite/creatorhub/internal/tracking"
	"github.com/ignite/creatorhub/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	return ln.Close()
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if _, err := os.Stat("config/config.yaml"); err == nil {
		return "config/config.yaml"
	}
	return ""
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err.Error())
	os.Exit(1)
}

func main() {
	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		fatal("failed to load config", err)
	}
	bootstrap.ConfigureLogging(cfg.Log)
	logger.Info("starting creatorhub API server", "addr", cfg.Server.Addr(), "tasks_backend", cfg.Tasks.Backend)

	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		fatal("pre-flight check failed", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := bootstrap.OpenDB(ctx, cfg.Database)
	if err != nil {
		fatal("database unavailable", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	rdb := bootstrap.OpenRedis(ctx, cfg.Redis.URL)
	if rdb != nil {
		defer rdb.Close()
		logger.Info("redis connected, code cache and distributed locking enabled")
	}

	// Tasks run in-process with the memory backend; with SQS they are
	// published here and consumed by cmd/worker.
	dispatcher := bootstrap.NewDispatcher(cfg.Tasks)
	queue, err := bootstrap.NewTaskQueue(ctx, cfg.Tasks, cfg.AWS, dispatcher)
	if err != nil {
		fatal("task queue unavailable", err)
	}
	svc := bootstrap.NewServices(cfg, db, rdb, queue)
	svc.RegisterHandlers(dispatcher)

	if !cfg.Payments.Enabled() {
		logger.Warn("STRIPE_SECRET_KEY not set, deposits will fail at the gateway")
	}
	gateway := stripegw.New(stripegw.Config{
		SecretKey:     cfg.Payments.StripeSecretKey,
		WebhookSecret: cfg.Payments.StripeWebhookSecret,
		SuccessURL:    cfg.Payments.SuccessURL,
		CancelURL:     cfg.Payments.CancelURL,
	})
	paymentSvc := payments.NewService(svc.Ledger, gateway, payments.WithCurrency(cfg.Payments.Currency))

	renderer, err := report.NewRenderer()
	if err != nil {
		fatal("report templates", err)
	}

	var (
		statements api.StatementExporter
		s3Client   *s3.Client
	)
	if cfg.Statements.Bucket != "" {
		awsCfg, err := bootstrap.AWS(ctx, cfg.Statements.Region, cfg.AWS)
		if err != nil {
			logger.Warn("AWS config for statement export failed, export disabled", "error", err.Error())
		} else {
			s3Client = s3.NewFromConfig(awsCfg)
			statements = report.NewStatementExporter(svc.Escrow, s3Client, s3.NewPresignClient(s3Client), report.StatementConfig{
				Bucket: cfg.Statements.Bucket,
				Prefix: cfg.Statements.Prefix,
				URLTTL: cfg.Statements.URLTTL(),
			})
			logger.Info("statement export enabled", "bucket", cfg.Statements.Bucket)
		}
	}

	handlers := api.NewHandlers(api.Services{
		Escrow:       svc.Escrow,
		Campaigns:    svc.Campaigns,
		Payments:     paymentSvc,
		Attribution:  svc.Attribution,
		LiftTests:    svc.LiftTests,
		Reports:      renderer,
		Statements:   statements,
		Integrations: svc.Integrations,
		Webhooks:     gateway,
	})
	server := api.NewServer(handlers, api.RouteOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         api.NewHealthChecker(db, rdb, s3Client, cfg.Statements.Bucket),
		Tracking:       tracking.NewHandler(svc.Attribution, queue),
	})

	// A single-process deployment also runs the ledger audit.
	var reconciler *worker.Reconciler
	if cfg.Reconciliation.Enabled && cfg.Tasks.Backend == "memory" {
		lock := distlock.NewLock(rdb, db, "creatorhub:reconcile", cfg.Reconciliation.LockTTL())
		reconciler = worker.NewReconciler(svc.Ledger, lock, cfg.Reconciliation.Schedule)
		if err := reconciler.Start(ctx); err != nil {
			fatal("reconciler schedule", err)
		}
	}

	go func() {
		logger.Info("API server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err.Error())
	}
	if reconciler != nil {
		reconciler.Stop()
	}
	queue.Stop()
	cancel()
	logger.Info("server stopped")
}
