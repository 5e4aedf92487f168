package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter 限流器接口
type Limiter interface {
	// Allow 判断一次请求是否放行
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// AllowN 判断 n 次请求是否放行
	AllowN(ctx context.Context, key string, n, limit int, window time.Duration) (bool, error)
	// Reset 清空某个 key 的计数
	Reset(ctx context.Context, key string) error
}

// RedisLimiter 基于 Redis 计数窗口的限流器
// 计数用 INCRBY + EXPIRE 原子完成，多实例部署共享同一份额度；
// failOpen 为 true 时 Redis 不可用直接放行（可用性优先）
type RedisLimiter struct {
	client   *redis.Client
	logger   *zap.Logger
	failOpen bool
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(client *redis.Client, logger *zap.Logger, failOpen bool) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		client:   client,
		logger:   logger,
		failOpen: failOpen,
	}
}

func (l *RedisLimiter) bucketKey(key string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, now.UnixNano()/int64(window))
}

// Allow 判断一次请求是否放行
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.AllowN(ctx, key, 1, limit, window)
}

// AllowN 判断 n 次请求是否放行
func (l *RedisLimiter) AllowN(ctx context.Context, key string, n, limit int, window time.Duration) (bool, error) {
	bucket := l.bucketKey(key, time.Now(), window)

	pipe := l.client.Pipeline()
	count := pipe.IncrBy(ctx, bucket, int64(n))
	pipe.Expire(ctx, bucket, window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter redis failure",
			zap.String("key", key),
			zap.Bool("fail_open", l.failOpen),
			zap.Error(err))
		if l.failOpen {
			return true, nil
		}
		return false, err
	}

	if count.Val() > int64(limit) {
		l.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count.Val()),
			zap.Int("limit", limit))
		return false, nil
	}
	return true, nil
}

// Reset 清空某个 key 在当前窗口的计数
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	bucket := l.bucketKey(key, time.Now(), time.Minute)
	return l.client.Del(ctx, bucket).Err()
}
