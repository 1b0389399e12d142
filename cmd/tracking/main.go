package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ignite/creatorhub/internal/bootstrap"
	"github.com/ignite/creatorhub/internal/config"
	"github.com/ignite/creatorhub/internal/metrics"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/tracking"
)

// The tracking service serves short-link redirects and the pixel. It only
// reads bundles and enqueues events, so it scales apart from the API.
func main() {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}
	bootstrap.ConfigureLogging(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := bootstrap.OpenDB(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	rdb := bootstrap.OpenRedis(ctx, cfg.Redis.URL)
	if rdb != nil {
		defer rdb.Close()
	}

	dispatcher := bootstrap.NewDispatcher(cfg.Tasks)
	queue, err := bootstrap.NewTaskQueue(ctx, cfg.Tasks, cfg.AWS, dispatcher)
	if err != nil {
		logger.Error("task queue unavailable", "error", err.Error())
		os.Exit(1)
	}
	svc := bootstrap.NewServices(cfg, db, rdb, queue)
	svc.RegisterHandlers(dispatcher)

	handler := tracking.NewHandler(svc.Attribution, queue)
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	handler.Mount(r)
	r.Get("/health", handler.HandleHealth)
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         cfg.Server.TrackingAddr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tracking service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down tracking service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracking shutdown failed", "error", err.Error())
	}
	queue.Stop()
}
