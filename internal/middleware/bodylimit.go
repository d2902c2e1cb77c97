package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dorepo/restgw/internal/observability"
)

// DefaultMaxBodySize limits request bodies to 32 MiB unless configured
// otherwise.
const DefaultMaxBodySize int64 = 32 << 20

// BodyLimit returns a middleware that rejects request bodies over maxSize
// with status 413. A declared Content-Length over the limit is rejected
// before any body bytes are read.
func BodyLimit(maxSize int64, logger observability.Logger) gin.HandlerFunc {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			logger.Warn("request body too large",
				observability.Int64("content_length", c.Request.ContentLength),
				observability.Int64("max_size", maxSize),
				observability.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				gin.H{"message": "request body too large"})
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}
		c.Next()
	}
}
