package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorepo/restgw/internal/observability"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.POST("/echo", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				gin.H{"message": "request body too large"})
			return
		}
		c.String(http.StatusOK, string(body))
	})
	return r
}

func TestRequestIDGenerated(t *testing.T) {
	t.Parallel()

	r := newEngine(RequestID())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDPreserved(t *testing.T) {
	t.Parallel()

	var inContext string
	r := newEngine(
		RequestID(),
		func(c *gin.Context) {
			inContext = observability.RequestIDFromContext(c.Request.Context())
			c.Next()
		},
	)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "caller-supplied")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "caller-supplied", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "caller-supplied", inContext)
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(observability.NopLogger()))
	r.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"internal server error"}`, w.Body.String())
}

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	t.Parallel()

	r := newEngine(BodyLimit(8, observability.NopLogger()))
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("clearly more than eight bytes"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestBodyLimitAllowsSmallBody(t *testing.T) {
	t.Parallel()

	r := newEngine(BodyLimit(64, observability.NopLogger()))
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("tiny"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tiny", w.Body.String())
}

func TestMemoryLimiter(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter(1, 2)

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within burst", i)
	}

	allowed, err := limiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(context.Background(), "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, allowed, "other clients are unaffected")
}

func TestMemoryLimiterSweep(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter(1, 1)
	current := time.Now()
	limiter.now = func() time.Time { return current }

	_, err := limiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)

	current = current.Add(defaultClientTTL + time.Minute)
	_, err = limiter.Allow(context.Background(), "5.6.7.8")
	require.NoError(t, err)

	limiter.mu.Lock()
	_, stale := limiter.clients["1.2.3.4"]
	limiter.mu.Unlock()
	assert.False(t, stale, "idle entry swept")
}

func TestRedisLimiter(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	limiter := NewRedisLimiter(client, 2, time.Minute)

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	r := newEngine(RateLimit(NewMemoryLimiter(1, 1), observability.NopLogger()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	limiter := NewRedisLimiter(client, 1, time.Minute)
	srv.Close()

	r := newEngine(RateLimit(limiter, observability.NopLogger()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestActiveRequests(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("test_mw")
	r := newEngine(ActiveRequests(metrics))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
