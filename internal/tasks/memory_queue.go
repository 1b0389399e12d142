package tasks

import (
	"context"
	"errors"
	"sync"

	"github.com/ignite/creatorhub/internal/pkg/logger"
)

// ErrQueueFull is returned when the buffer is full. Enqueue never blocks.
var ErrQueueFull = errors.New("task queue full")

// ErrQueueClosed is returned after Stop.
var ErrQueueClosed = errors.New("task queue closed")

// MemoryQueue is a buffered channel drained by a fixed worker pool.
type MemoryQueue struct {
	dispatcher *Dispatcher
	ch         chan Task
	workers    int

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	stopCtx context.CancelFunc
}

// NewMemoryQueue creates a queue with the given buffer and worker count.
func NewMemoryQueue(d *Dispatcher, buffer, workers int) *MemoryQueue {
	if buffer < 1 {
		buffer = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &MemoryQueue{dispatcher: d, ch: make(chan Task, buffer), workers: workers}
}

// Start launches the workers. They stop when ctx ends or Stop is called.
func (q *MemoryQueue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.stopCtx = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
	logger.Info("memory task queue started", "workers", q.workers)
}

func (q *MemoryQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q.ch:
			if !ok {
				return
			}
			_ = q.dispatcher.Dispatch(ctx, t)
		}
	}
}

// Enqueue buffers a task.
func (q *MemoryQueue) Enqueue(_ context.Context, t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new tasks, drains what is buffered and waits for workers.
func (q *MemoryQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
	if q.stopCtx != nil {
		q.stopCtx()
	}
}
