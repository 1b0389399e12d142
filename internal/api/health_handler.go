package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/creatorhub/internal/pkg/httputil"
	"github.com/redis/go-redis/v9"
)

const (
	statusUp            = "up"
	statusDown          = "down"
	statusDegraded      = "degraded"
	statusNotConfigured = "not_configured"
)

// ComponentCheck is the result of checking one dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status string                    `json:"status"`
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// dependency checks one backing service. A nil run means the service is
// not wired.
type dependency struct {
	name     string
	critical bool
	timeout  time.Duration
	slow     time.Duration
	run      func(ctx context.Context) (string, error)
}

// HealthChecker checks Postgres, Redis, the statement bucket and the
// deposit settlement backlog.
type HealthChecker struct {
	db      *sql.DB
	deps    []dependency
	started time.Time
}

// NewHealthChecker wires the dependency checks. Any dependency may be nil.
func NewHealthChecker(db *sql.DB, rdb *redis.Client, s3Client *s3.Client, bucket string) *HealthChecker {
	hc := &HealthChecker{db: db, started: time.Now()}

	database := dependency{name: "database", critical: true, timeout: 3 * time.Second, slow: time.Second}
	deposits := dependency{name: "deposits", timeout: 3 * time.Second}
	if db != nil {
		database.run = func(ctx context.Context) (string, error) {
			return "connected", db.PingContext(ctx)
		}
		deposits.run = func(ctx context.Context) (string, error) {
			var stale int
			err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions
				WHERE type = 'deposit' AND status = 'pending' AND created_at < NOW() - INTERVAL '1 hour'`).Scan(&stale)
			if err != nil {
				return "", err
			}
			if stale > 0 {
				return "", staleDepositsError(stale)
			}
			return "no stale pending deposits", nil
		}
	}

	cache := dependency{name: "redis", timeout: 2 * time.Second, slow: 500 * time.Millisecond}
	if rdb != nil {
		cache.run = func(ctx context.Context) (string, error) {
			return "connected", rdb.Ping(ctx).Err()
		}
	}

	statements := dependency{name: "s3", timeout: 3 * time.Second}
	if s3Client != nil && bucket != "" {
		statements.run = func(ctx context.Context) (string, error) {
			_, err := s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &bucket})
			return fmt.Sprintf("bucket %q accessible", bucket), err
		}
	}

	hc.deps = []dependency{database, cache, statements, deposits}
	return hc
}

// staleDepositsError means webhooks are not arriving and nobody is polling.
type staleDepositsError int

func (e staleDepositsError) Error() string {
	return fmt.Sprintf("%d deposits pending for over an hour", int(e))
}

// HandleHealth reports every check. It always answers 200; the status field
// carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.check(r.Context())
	httputil.JSON(w, http.StatusOK, HealthStatus{
		Status: hc.overall(checks),
		Uptime: time.Since(hc.started).Round(time.Second).String(),
		Checks: checks,
	})
}

// HandleLiveness answers 200 while the process is up.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(hc.started).Round(time.Second).String(),
	})
}

// HandleReadiness answers 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.check(r.Context())
	overall := hc.overall(checks)
	code := http.StatusOK
	if overall == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]interface{}{
		"ready":  code == http.StatusOK,
		"status": overall,
		"checks": checks,
	})
}

// HandleDBStats exposes the database/sql pool counters.
//
//	GET /health/db
func (hc *HealthChecker) HandleDBStats(w http.ResponseWriter, _ *http.Request) {
	if hc.db == nil {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": statusNotConfigured})
		return
	}
	s := hc.db.Stats()
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"max_open":      s.MaxOpenConnections,
		"open":          s.OpenConnections,
		"in_use":        s.InUse,
		"idle":          s.Idle,
		"wait_count":    s.WaitCount,
		"wait_duration": s.WaitDuration.String(),
	})
}

func (hc *HealthChecker) check(ctx context.Context) map[string]ComponentCheck {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]ComponentCheck, len(hc.deps))
	)
	for _, p := range hc.deps {
		wg.Add(1)
		go func(p dependency) {
			defer wg.Done()
			c := runCheck(ctx, p)
			mu.Lock()
			out[p.name] = c
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return out
}

func runCheck(ctx context.Context, p dependency) ComponentCheck {
	if p.run == nil {
		return ComponentCheck{Status: statusNotConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	msg, err := p.run(ctx)
	latency := time.Since(start)

	c := ComponentCheck{Status: statusUp, Latency: latency.String(), Message: msg}
	switch err.(type) {
	case nil:
		if p.slow > 0 && latency > p.slow {
			c.Status = statusDegraded
			c.Message = "slow response"
		}
	case staleDepositsError:
		c.Status, c.Message = statusDegraded, err.Error()
	default:
		c.Status, c.Message = statusDown, err.Error()
	}
	return c
}

// overall is unhealthy when a critical dependency is down, degraded when any
// wired dependency is not up, and healthy otherwise.
func (hc *HealthChecker) overall(checks map[string]ComponentCheck) string {
	verdict := "healthy"
	for _, p := range hc.deps {
		switch checks[p.name].Status {
		case statusDown:
			if p.critical {
				return "unhealthy"
			}
			verdict = statusDegraded
		case statusDegraded:
			verdict = statusDegraded
		}
	}
	return verdict
}
