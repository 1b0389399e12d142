package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/creatorhub/internal/bootstrap"
	"github.com/ignite/creatorhub/internal/config"
	"github.com/ignite/creatorhub/internal/pkg/distlock"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/tasks"
	"github.com/ignite/creatorhub/internal/worker"
)

func fatal(msg string, err error) {
	logger.Error(msg, "error", err.Error())
	os.Exit(1)
}

func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fatal("failed to load config", err)
	}
	bootstrap.ConfigureLogging(cfg.Log)
	logger.Info("starting creatorhub worker", "tasks_backend", cfg.Tasks.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := bootstrap.OpenDB(ctx, cfg.Database)
	if err != nil {
		fatal("database unavailable", err)
	}
	defer db.Close()

	rdb := bootstrap.OpenRedis(ctx, cfg.Redis.URL)
	if rdb != nil {
		defer rdb.Close()
	}

	// The consumer drains the SQS queue; follow-up tasks produced while
	// handling are published back onto it.
	var (
		queue      tasks.Queue
		consumer   *tasks.SQSConsumer
		dispatcher = bootstrap.NewDispatcher(cfg.Tasks)
	)
	if cfg.Tasks.Backend == "sqs" {
		client, err := bootstrap.NewSQSClient(ctx, cfg.Tasks, cfg.AWS)
		if err != nil {
			fatal("sqs client", err)
		}
		queue = tasks.NewSQSPublisher(client, cfg.Tasks.QueueURL)
		consumer = tasks.NewSQSConsumer(client, cfg.Tasks.QueueURL, dispatcher)
	} else {
		logger.Info("memory task backend: tasks run inside the API server, worker only audits the ledger")
	}
	svc := bootstrap.NewServices(cfg, db, rdb, queue)
	if consumer != nil {
		svc.RegisterHandlers(dispatcher)
		consumer.Start(ctx)
	}

	var reconciler *worker.Reconciler
	if cfg.Reconciliation.Enabled {
		lock := distlock.NewLock(rdb, db, "creatorhub:reconcile", cfg.Reconciliation.LockTTL())
		reconciler = worker.NewReconciler(svc.Ledger, lock, cfg.Reconciliation.Schedule)
		if err := reconciler.Start(ctx); err != nil {
			fatal("reconciler schedule", err)
		}
		logger.Info("ledger reconciler scheduled", "schedule", cfg.Reconciliation.Schedule)
	}

	if consumer == nil && reconciler == nil {
		logger.Warn("nothing to do: no SQS queue and reconciliation disabled")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down worker")

	if consumer != nil {
		consumer.Stop()
	}
	if reconciler != nil {
		reconciler.Stop()
	}
	cancel()

	// Give in-flight handlers time to finish their transactions.
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}
