package distlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// compareAndDelete removes the key only while it still holds our token.
var compareAndDelete = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLock is SET NX PX with a per-instance token. The TTL bounds how long
// a crashed holder can block others.
type RedisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, key: "lock:" + key, token: uuid.NewString(), ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	return compareAndDelete.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
