// Package locker serializes work on a key across goroutines or processes.
package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Unlock gives the key back. It is safe to call once.
type Unlock func()

type Locker interface {
	// TryLock takes key without waiting. ok is false when someone else holds it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock Unlock, ok bool, err error)
}

// Acquire waits for key, polling with exponential backoff until ctx is done.
func Acquire(ctx context.Context, l Locker, key string, ttl time.Duration) (Unlock, error) {
	var unlock Unlock
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 5 * time.Millisecond
	eb.MaxInterval = 200 * time.Millisecond
	eb.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		u, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrNotAcquired
		}
		unlock = u
		return nil
	}, backoff.WithContext(eb, ctx))
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	return unlock, nil
}

// RedisLocker backs keys with go-zero RedisLock so several replicas share them.
type RedisLocker struct {
	rds    *redis.Redis
	prefix string
}

func NewRedisLocker(rds *redis.Redis, prefix string) *RedisLocker {
	return &RedisLocker{rds: rds, prefix: prefix}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, bool, error) {
	lock := redis.NewRedisLock(l.rds, l.prefix+key)
	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	lock.SetExpire(seconds)

	ok, err := lock.AcquireCtx(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if _, err := lock.ReleaseCtx(context.Background()); err != nil {
				logx.Errorw("locker: release failed",
					logx.Field("key", l.prefix+key),
					logx.Field("err", err.Error()),
				)
			}
		})
	}, true, nil
}

// MemoryLocker is a keyed mutex for single-process deployments. The ttl is
// ignored; holders always unlock.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, _ time.Duration) (Unlock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
