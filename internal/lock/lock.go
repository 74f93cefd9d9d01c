package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("lock_timeout")

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const retryInterval = 20 * time.Millisecond

// Locker hands out exclusive, expiring ownership of a key. The returned
// token must be presented to Release.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// RedisLocker serializes work across instances sharing one Redis.
type RedisLocker struct {
	client redisStore
	script *redis.Script
}

func NewRedisLocker(client redisStore) *RedisLocker {
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes key only while it still holds token.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// LocalLocker is the in-process Locker used when no Redis is configured.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localHold
	nowFn func() time.Time
}

type localHold struct {
	token     string
	expiresAt time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]localHold{}, nowFn: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if h, ok := l.held[key]; ok && now.Before(h.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = localHold{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
	}
	return nil
}

// Acquire polls l until key is owned or wait elapses. The returned func
// releases the lock and is safe to call once the request context is gone.
func Acquire(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			releaseCtx := context.WithoutCancel(ctx)
			return func() { _ = l.Release(releaseCtx, key, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return errors.New("lock ttl must be positive")
	}
	return nil
}
