package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/dorepo/restgw/internal/observability"
)

// defaultClientTTL is how long an idle per-client limiter is kept.
const defaultClientTTL = 10 * time.Minute

// Limiter decides whether a client may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// clientEntry holds a limiter with its last access time for TTL cleanup.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter applies a token-bucket limit per client in process memory.
type MemoryLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientEntry
	rps       int
	burst     int
	clientTTL time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter allowing rps requests per
// second with the given burst per client.
func NewMemoryLimiter(rps, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		clients:   make(map[string]*clientEntry),
		rps:       rps,
		burst:     burst,
		clientTTL: defaultClientTTL,
		now:       time.Now,
	}
}

// Allow reports whether the keyed client may proceed.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.clients[key]
	if !ok {
		entry = &clientEntry{
			limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst),
		}
		l.clients[key] = entry
	}
	entry.lastAccess = now

	if now.Sub(l.lastSweep) > l.clientTTL {
		l.sweep(now)
		l.lastSweep = now
	}
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow(), nil
}

// sweep drops idle client entries. Callers hold the lock.
func (l *MemoryLimiter) sweep(now time.Time) {
	for key, entry := range l.clients {
		if now.Sub(entry.lastAccess) > l.clientTTL {
			delete(l.clients, key)
		}
	}
}

// RedisLimiter applies a fixed-window limit per client shared across gateway
// instances.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a limiter allowing limit requests per window per
// client, counted in Redis.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit",
	}
}

// Allow reports whether the keyed client may proceed. A Redis failure denies
// nothing: the error is surfaced and the caller decides.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := time.Now().Unix() / int64(l.window.Seconds())
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, window)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() <= int64(l.limit), nil
}

// RateLimit returns a middleware enforcing the limiter per client IP. When
// the limiter itself fails the request is allowed through.
func RateLimit(limiter Limiter, logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		allowed, err := limiter.Allow(c.Request.Context(), clientIP)
		if err != nil {
			logger.Error("rate limiter unavailable",
				observability.String("client_ip", clientIP),
				observability.Error(err),
			)
			c.Next()
			return
		}
		if !allowed {
			logger.Warn("rate limit exceeded",
				observability.String("client_ip", clientIP),
				observability.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"message": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
