package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/logger"
)

// Observability starts a server span per request, records request metrics labelled by
// route template, and writes one access log line. Query strings are never logged since
// they carry state and PKCE parameters.
func Observability(tracer trace.Tracer, metrics service.Metrics, log logger.Logger) gin.HandlerFunc {
	propagator := propagation.TraceContext{}
	return func(c *gin.Context) {
		start := time.Now()

		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route(c), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		duration := time.Since(start)
		path := route(c)
		metrics.RecordHTTPRequest(c.Request.Method, path, status, duration)

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", path),
			attribute.Int("http.status_code", status),
		)
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("route", path),
			logger.Int("status", status),
			logger.Duration("latency", duration),
			logger.String("client_ip", c.ClientIP()),
			logger.String("request_id", RequestIDFrom(c)),
		}
		switch {
		case status >= 500:
			log.Warn(c.Request.Context(), "request failed", fields...)
		default:
			log.Info(c.Request.Context(), "request served", fields...)
		}
	}
}

// route is the matched route template, which keeps metric label cardinality bounded.
func route(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "not_found"
}
