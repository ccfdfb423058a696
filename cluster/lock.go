package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSweepRunning is returned when another maintenance sweep holds the lock.
var ErrSweepRunning = errors.New("cluster: maintenance sweep already running")

// Locker provides mutual exclusion between maintenance sweeps.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LocalLocker serialises sweeps inside one process.
type LocalLocker struct {
	mu sync.Mutex
}

func (l *LocalLocker) Acquire(context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrSweepRunning
	}
	return l.mu.Unlock, nil
}

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serialises sweeps across every API instance sharing a Redis.
// The TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisLocker(client *redis.Client, key string, ttl time.Duration, log *zap.Logger) *RedisLocker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{client: client, key: key, ttl: ttl, log: log}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, ErrSweepRunning
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.log.Warn("release sweep lock failed", zap.String("key", l.key), zap.Error(err))
		}
	}, nil
}
