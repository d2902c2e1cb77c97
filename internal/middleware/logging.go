package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dorepo/restgw/internal/observability"
)

// Logging returns a middleware that logs every request with its outcome.
func Logging(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []observability.Field{
			observability.String("method", c.Request.Method),
			observability.String("path", path),
			observability.Int("status", status),
			observability.Duration("duration", time.Since(start)),
			observability.String("client_ip", c.ClientIP()),
		}
		if requestID := observability.RequestIDFromContext(c.Request.Context()); requestID != "" {
			fields = append(fields, observability.String("request_id", requestID))
		}

		switch {
		case status >= 500:
			logger.Error("request completed", fields...)
		case status >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}
