package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/janicogyle/ccs-membership-sub001/config"
	apperrors "github.com/janicogyle/ccs-membership-sub001/internal/errors"
	"github.com/janicogyle/ccs-membership-sub001/internal/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter decides whether one more request under key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	// RetryAfter is the hint sent to rejected clients.
	RetryAfter() time.Duration
}

// RedisRateLimiter is a fixed-window counter shared by every instance that
// points at the same Redis.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ccs:rl:",
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.prefix + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	return count <= l.limit, nil
}

func (l *RedisRateLimiter) RetryAfter() time.Duration {
	return l.window
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryRateLimiter keeps a token bucket per key in process. Idle buckets
// are dropped by a background sweep.
type MemoryRateLimiter struct {
	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMemoryRateLimiter(perMinute, burst int, cleanupInterval time.Duration) *MemoryRateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &MemoryRateLimiter{
		limit:           rate.Limit(float64(perMinute) / 60.0),
		burst:           burst,
		cleanupInterval: cleanupInterval,
		limiters:        make(map[string]*keyLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	kl, exists := l.limiters[key]
	if !exists {
		kl = &keyLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = kl
	}
	kl.lastAccess = time.Now()
	l.mu.Unlock()

	return kl.limiter.Allow(), nil
}

func (l *MemoryRateLimiter) RetryAfter() time.Duration {
	if l.limit <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / float64(l.limit))
}

// Stop ends the background sweep.
func (l *MemoryRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Len returns the number of tracked keys.
func (l *MemoryRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

// cleanup drops keys idle for more than two cleanup intervals.
func (l *MemoryRateLimiter) cleanup(now time.Time) {
	ttl := l.cleanupInterval * 2

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, kl := range l.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(l.limiters, key)
		}
	}
}

// NewRateLimiter picks the Redis limiter when a client is available and the
// in-process one otherwise.
func NewRateLimiter(cfg config.RateLimitConfig, client *redis.Client) RateLimiter {
	if client != nil {
		return NewRedisRateLimiter(client, cfg.RequestsPerMinute, time.Minute)
	}
	return NewMemoryRateLimiter(cfg.RequestsPerMinute, cfg.Burst, 5*time.Minute)
}

// RateLimit throttles requests per scope and client IP. A limiter error lets
// the request through.
func RateLimit(limiter RateLimiter, scope string, rec metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)
		key := scope + ":" + c.ClientIP()

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("Rate limiter unavailable, allowing request", map[string]interface{}{
				"scope": scope,
				"error": err.Error(),
			})
			c.Next()
			return
		}

		if !allowed {
			log.Warn("Rate limit exceeded", map[string]interface{}{
				"scope": scope,
			})
			if rec != nil && scope == "login" {
				rec.RecordLogin(metrics.ResultRateLimited)
			}
			retryAfter := int(math.Ceil(limiter.RetryAfter().Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			apperrors.TooManyRequests(c)
			c.Abort()
			return
		}

		c.Next()
	}
}
