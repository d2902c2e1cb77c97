package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dorepo/restgw/internal/observability"
)

// Middleware returns a gin middleware that resolves the caller's identity
// and stores it in the request context. Requests with invalid credentials
// are rejected with 401; requests without credentials continue as the
// anonymous identity.
func Middleware(authenticator *Authenticator, logger observability.Logger) gin.HandlerFunc {
	return DynamicMiddleware(func() *Authenticator { return authenticator }, logger)
}

// DynamicMiddleware is Middleware with the authenticator resolved per
// request, so a configuration reload can swap it without restarting the
// server.
func DynamicMiddleware(source func() *Authenticator, logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		id, err := source().Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			logger.Debug("authentication rejected",
				observability.String("path", c.Request.URL.Path),
				observability.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Unauthorized",
			})
			return
		}

		ctx := ContextWithIdentity(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
