package audit

import (
	"context"
	"fmt"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/logger"
)

// DatabaseSink stores audit events through the audit repository.
type DatabaseSink struct {
	repo repository.AuditRepository
}

// NewDatabaseSink creates a new DatabaseSink.
func NewDatabaseSink(repo repository.AuditRepository) *DatabaseSink {
	return &DatabaseSink{repo: repo}
}

var _ service.AuditService = (*DatabaseSink)(nil)

func (s *DatabaseSink) LogEvent(ctx context.Context, event *models.AuditEvent) error {
	return s.repo.Save(ctx, event)
}

// LogSink writes audit events to the structured application log.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a new LogSink.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.WithComponent("Audit")}
}

var _ service.AuditService = (*LogSink)(nil)

func (s *LogSink) LogEvent(ctx context.Context, event *models.AuditEvent) error {
	fields := []logger.Field{
		logger.String("event_id", event.EventID),
		logger.String("event_type", string(event.EventType)),
		logger.String("result", event.Result),
		logger.String("tenant_id", event.TenantID),
		logger.String("actor_id", event.ActorID),
		logger.String("client_id", event.ClientID),
		logger.String("ip_address", event.IPAddress),
		logger.Time("timestamp", event.Timestamp),
	}
	if event.ResultCode != "" {
		fields = append(fields, logger.String("error_code", string(event.ResultCode)))
	}
	if event.Message != "" {
		fields = append(fields, logger.String("detail", event.Message))
	}
	s.logger.Info(ctx, "audit event", fields...)
	return nil
}

// NewSink builds the sink named by audit.sink.
//
// Parameters:
//   - cfg: application configuration (audit and kafka sections)
//   - repo: audit repository, required for the database sink
//   - log: logger for the log sink and sink diagnostics
//
// Returns:
//   - service.AuditService: the selected sink
//   - func() error: releases sink resources
//   - error: unknown sink name or missing repository
func NewSink(cfg *config.Config, repo repository.AuditRepository, log logger.Logger) (service.AuditService, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Audit.Sink {
	case "kafka":
		p := NewKafkaProducer(cfg.Kafka, log)
		return p, p.Close, nil
	case "database":
		if repo == nil {
			return nil, nil, fmt.Errorf("audit sink %q requires an audit repository", cfg.Audit.Sink)
		}
		return NewDatabaseSink(repo), noop, nil
	case "log", "":
		return NewLogSink(log), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown audit sink %q", cfg.Audit.Sink)
	}
}
