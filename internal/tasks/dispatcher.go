package tasks

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ignite/creatorhub/internal/metrics"
	"github.com/ignite/creatorhub/internal/pkg/logger"
)

// Dispatcher routes tasks to handlers and retries failures with exponential
// backoff and jitter.
type Dispatcher struct {
	mu          sync.RWMutex
	handlers    map[Type]Handler
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewDispatcher creates a dispatcher. maxAttempts below 1 means 1.
func NewDispatcher(maxAttempts int, baseBackoff time.Duration) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		handlers:    make(map[Type]Handler),
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		maxBackoff:  30 * time.Second,
	}
}

// Register binds a handler to a task type, replacing any previous one.
func (d *Dispatcher) Register(t Type, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

// Dispatch runs the task's handler until it succeeds, fails permanently,
// runs out of attempts or ctx ends. It returns the last error.
func (d *Dispatcher) Dispatch(ctx context.Context, t Task) error {
	d.mu.RLock()
	h, ok := d.handlers[t.Type]
	d.mu.RUnlock()
	if !ok {
		metrics.RecordTask(string(t.Type), "failed")
		logger.Error("no handler for task", "task_id", t.ID, "type", string(t.Type))
		return Permanent(fmt.Errorf("no handler for task type %q", t.Type))
	}

	var err error
	for t.Attempt < d.maxAttempts {
		t.Attempt++
		err = h(ctx, t)
		if err == nil {
			metrics.RecordTask(string(t.Type), "ok")
			return nil
		}
		if IsPermanent(err) || t.Attempt >= d.maxAttempts {
			break
		}
		metrics.RecordTask(string(t.Type), "retry")
		logger.Warn("task failed, retrying", "task_id", t.ID, "type", string(t.Type), "attempt", t.Attempt, "error", err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.backoff(t.Attempt)):
		}
	}

	metrics.RecordTask(string(t.Type), "failed")
	logger.Error("task failed", "task_id", t.ID, "type", string(t.Type), "attempts", t.Attempt, "error", err.Error())
	return err
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	if d.baseBackoff <= 0 {
		return 0
	}
	delay := d.baseBackoff << uint(attempt-1)
	if delay > d.maxBackoff || delay <= 0 {
		delay = d.maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
