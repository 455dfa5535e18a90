package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"casedesk/pkg/circuitbreaker"
	"casedesk/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	unreadKeyPrefix     = "notification:unread:"
	generationKeyPrefix = "notification:unread_gen:"

	// An expired generation restarts at 0, which only skips writes.
	generationTTL = 24 * time.Hour
)

// errStaleGeneration aborts a write that raced with an invalidation.
var errStaleGeneration = errors.New("unread count generation changed")

// UnreadCounter caches per-owner unread counts in Redis. Every call is best
// effort: failures are logged and reported as a miss, never returned.
//
// Each owner has an invalidation generation. Invalidate bumps it, and Set
// only writes while it still equals the value Get returned, so a count read
// before a mutation cannot be cached after that mutation's invalidation.
type UnreadCounter struct {
	rdb     *redis.Client
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewUnreadCounter(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *UnreadCounter {
	if ttl <= 0 {
		ttl = time.Minute
	}
	cfg := circuitbreaker.DefaultConfig()
	cfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &UnreadCounter{
		rdb:     rdb,
		ttl:     ttl,
		breaker: circuitbreaker.NewCircuitBreaker("redis-unread-count", cfg),
		logger:  logger,
	}
}

// Get returns the cached count and whether it was present. On a miss gen is
// the generation a following Set must match; it is negative when Redis could
// not be read, and Set then skips the write.
func (c *UnreadCounter) Get(ctx context.Context, owner string) (count, gen int64, hit bool) {
	var vals []any
	err := c.breaker.Execute(func() error {
		var err error
		vals, err = c.rdb.MGet(ctx, FormatUnreadKey(owner), FormatGenerationKey(owner)).Result()
		return err
	})
	if err != nil {
		metrics.IncrementUnreadCache("error")
		c.logger.Debug("Unread count cache read failed",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return 0, -1, false
	}

	gen, err = parseCounter(vals[1])
	if err != nil {
		metrics.IncrementUnreadCache("error")
		return 0, -1, false
	}
	if vals[0] == nil {
		metrics.IncrementUnreadCache("miss")
		return 0, gen, false
	}

	count, err = parseCounter(vals[0])
	if err != nil {
		metrics.IncrementUnreadCache("error")
		c.Invalidate(ctx, owner)
		return 0, -1, false
	}
	metrics.IncrementUnreadCache("hit")
	return count, gen, true
}

// Set stores count for owner with the configured TTL, unless the owner was
// invalidated since gen was read.
func (c *UnreadCounter) Set(ctx context.Context, owner string, gen, count int64) {
	if gen < 0 {
		return
	}
	genKey := FormatGenerationKey(owner)

	var stale bool
	err := c.breaker.Execute(func() error {
		err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, genKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			current, err := parseCounter(raw)
			if err != nil {
				return err
			}
			if current != gen {
				return errStaleGeneration
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, FormatUnreadKey(owner), count, c.ttl)
				return nil
			})
			return err
		}, genKey)
		if errors.Is(err, errStaleGeneration) || errors.Is(err, redis.TxFailedErr) {
			stale = true
			return nil
		}
		return err
	})
	if stale {
		c.logger.Debug("Skipped caching unread count invalidated mid-read", zap.String("owner", owner))
		return
	}
	if err != nil {
		c.logger.Debug("Unread count cache write failed",
			zap.String("owner", owner),
			zap.Error(err),
		)
	}
}

// Invalidate drops the cached count for owner and bumps its generation.
func (c *UnreadCounter) Invalidate(ctx context.Context, owner string) {
	genKey := FormatGenerationKey(owner)
	err := c.breaker.Execute(func() error {
		_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, genKey)
			pipe.Expire(ctx, genKey, generationTTL)
			pipe.Del(ctx, FormatUnreadKey(owner))
			return nil
		})
		return err
	})
	if err != nil {
		c.logger.Warn("Unread count cache invalidation failed",
			zap.String("owner", owner),
			zap.Error(err),
		)
	}
}

// parseCounter reads an integer Redis value; nil and "" count as 0.
func parseCounter(v any) (int64, error) {
	switch s := v.(type) {
	case nil:
		return 0, nil
	case string:
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected cache value %T", v)
	}
}

// FormatUnreadKey 生成未读数缓存 key
func FormatUnreadKey(owner string) string {
	return fmt.Sprintf("%s%s", unreadKeyPrefix, owner)
}

// FormatGenerationKey 生成未读数失效代数 key
func FormatGenerationKey(owner string) string {
	return fmt.Sprintf("%s%s", generationKeyPrefix, owner)
}
