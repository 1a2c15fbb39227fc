package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when it still holds our
// token, so a run that outlived its TTL cannot delete a successor's
// lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock enforces the single-active-run rule: at most one processing
// run per batch identifier, across all workers. The lock is a Redis
// SETNX key with a TTL so a crashed worker cannot wedge a batch
// forever. Each acquisition stores a random token; release is a
// compare-and-delete on that token.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[string]string
}

// NewRunLock creates a run lock with the given TTL.
func NewRunLock(cache *RedisCache, ttl time.Duration, logger *slog.Logger) *RunLock {
	if logger == nil {
		logger = slog.Default()
	}

	return &RunLock{
		client: cache.Client(),
		ttl:    ttl,
		logger: logger,
		tokens: make(map[string]string),
	}
}

func (l *RunLock) key(batchID string) string {
	return fmt.Sprintf("intake:batch:%s:lock", batchID)
}

// Acquire takes the lock for a batch. Returns false when another run
// already holds it.
func (l *RunLock) Acquire(ctx context.Context, batchID string) (bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key(batchID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}

	if ok {
		l.mu.Lock()
		l.tokens[batchID] = token
		l.mu.Unlock()
		l.logger.Debug("run lock acquired", slog.String("batch_id", batchID))
	}
	return ok, nil
}

// Release drops the lock for a batch, but only if this instance still
// owns it. Releasing an expired, absent, or reacquired lock is a no-op.
func (l *RunLock) Release(ctx context.Context, batchID string) error {
	l.mu.Lock()
	token, ok := l.tokens[batchID]
	delete(l.tokens, batchID)
	l.mu.Unlock()

	if !ok {
		return nil
	}

	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key(batchID)}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}

	if deleted == 0 {
		l.logger.Warn("run lock expired before release", slog.String("batch_id", batchID))
		return nil
	}

	l.logger.Debug("run lock released", slog.String("batch_id", batchID))
	return nil
}

// IsHeld reports whether a run currently holds the lock for a batch.
func (l *RunLock) IsHeld(ctx context.Context, batchID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(batchID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check run lock: %w", err)
	}
	return n > 0, nil
}
