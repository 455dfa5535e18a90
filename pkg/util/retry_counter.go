package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter 在 Redis 中记录每个事件的失败次数，跨消费者实例共享
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet bumps the attempt count of key. The expiry is set in the
// same transaction so a crash between the two commands cannot leak the key.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("retry counter incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Reset forgets the attempts of key after success or dead-lettering.
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey 重试计数键：notification:retry:<handler>:<event_id>
func FormatRetryKey(handler, eventID string) string {
	return fmt.Sprintf("notification:retry:%s:%s", handler, eventID)
}
