package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisLockTTL   = time.Minute
	defaultRedisLockRetry = 200 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisDistributedLockManager keeps locks as expiring keys holding a per-holder token.
type RedisDistributedLockManager struct {
	client     redis.Cmdable
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration

	mu     sync.Mutex
	tokens map[int]string
}

func NewRedisDistributedLockManager(client redis.Cmdable, prefix string, ttl time.Duration) *RedisDistributedLockManager {
	if ttl <= 0 {
		ttl = defaultRedisLockTTL
	}
	if prefix == "" {
		prefix = "recurfire:lock"
	}
	return &RedisDistributedLockManager{
		client:     client,
		prefix:     prefix,
		ttl:        ttl,
		retryDelay: defaultRedisLockRetry,
		tokens:     make(map[int]string),
	}
}

func (l *RedisDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	for {
		ok, err := l.TryAcquire(ctx, lockID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to acquire lock: %w", ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *RedisDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(lockID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[lockID] = token
	l.mu.Unlock()
	return true, nil
}

func (l *RedisDistributedLockManager) Release(ctx context.Context, lockID int) error {
	l.mu.Lock()
	token, ok := l.tokens[lockID]
	delete(l.tokens, lockID)
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("failed to release lock: lock %d is not held", lockID)
	}

	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key(lockID)}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("failed to release lock: lock %d expired before release", lockID)
	}
	return nil
}

func (l *RedisDistributedLockManager) key(lockID int) string {
	return fmt.Sprintf("%s:%d", l.prefix, lockID)
}
