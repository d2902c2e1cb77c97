package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dorepo/restgw/internal/observability"
)

// TracingConfig holds the collaborators for the tracing middleware. Zero
// values fall back to the process-global OpenTelemetry provider and
// propagator.
type TracingConfig struct {
	ServiceName string
	Provider    trace.TracerProvider
	Propagator  propagation.TextMapPropagator
}

// Tracing returns a middleware that wraps every request in a server span
// using the global tracer provider.
func Tracing(serviceName string) gin.HandlerFunc {
	return TracingWithConfig(TracingConfig{ServiceName: serviceName})
}

// TracingWithConfig returns a tracing middleware over the given provider.
// The incoming trace context is extracted from the request headers so spans
// join the caller's trace.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "restgw"
	}
	if cfg.Provider == nil {
		cfg.Provider = otel.GetTracerProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	tracer := cfg.Provider.Tracer(cfg.ServiceName)

	return func(c *gin.Context) {
		ctx := cfg.Propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", c.Request.URL.Path),
			attribute.String("net.peer.ip", c.ClientIP()),
		)
		if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
