package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dorepo/restgw/internal/observability"
)

// ActiveRequests returns a middleware tracking the number of in-flight
// requests.
func ActiveRequests(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.IncActiveRequests()
		defer metrics.DecActiveRequests()
		c.Next()
	}
}
