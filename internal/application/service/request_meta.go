package service

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/authcore/internal/domain/models"
	domainService "github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/logger"
)

type requestMetaKey struct{}

// RequestMeta is transport information attached to audit events.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta stores caller information for audit events emitted while serving ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the caller information stored by WithRequestMeta.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// auditor stamps events with request metadata and the trace id, then hands them to the
// audit service. Delivery failures are logged and never fail the caller.
type auditor struct {
	svc    domainService.AuditService
	logger logger.Logger
}

func (a auditor) emit(ctx context.Context, event *models.AuditEvent) {
	if a.svc == nil {
		return
	}
	meta := RequestMetaFrom(ctx)
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	event.WithContextInfo(meta.IPAddress, meta.UserAgent, traceID)
	if err := a.svc.LogEvent(ctx, event); err != nil {
		a.logger.Error(ctx, "failed to record audit event", err,
			logger.String("event_type", string(event.EventType)),
		)
	}
}
