// Package distlock keeps scheduled jobs single-flight across replicas.
// Redis is preferred; without it a Postgres advisory lock is used.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by Run when another holder owns the lock.
var ErrNotAcquired = errors.New("distlock: lock held elsewhere")

// DistLock is a non-blocking mutual exclusion lock. One instance should be
// used by one job at a time.
type DistLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// NewLock picks Redis when rdb is set and Postgres otherwise.
func NewLock(rdb *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if rdb != nil {
		return NewRedisLock(rdb, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// Run calls fn while holding l, or returns ErrNotAcquired without calling it.
// The lock is released on a fresh context so a canceled job still frees it.
func Run(ctx context.Context, l DistLock, fn func(ctx context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Release(relCtx); err != nil {
			logger.Warn("lock release failed", "error", err)
		}
	}()
	return fn(ctx)
}

// PGAdvisoryLock is a session-level advisory lock. Session locks belong to a
// connection, so the lock pins one from the pool until Release.
type PGAdvisoryLock struct {
	db  *sql.DB
	id  int64
	mu  sync.Mutex
	con *sql.Conn
}

// NewPGAdvisoryLock derives the advisory key from a 64-bit FNV-1a of key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, id: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.con != nil {
		return false, nil
	}
	con, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock conn: %w", err)
	}
	var got bool
	if err := con.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.id).Scan(&got); err != nil {
		con.Close()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !got {
		con.Close()
		return false, nil
	}
	l.con = con
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.con == nil {
		return nil
	}
	defer func() {
		l.con.Close()
		l.con = nil
	}()
	_, err := l.con.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.id)
	return err
}
