// Package audit implements the AuditService interface over Kafka, the database or the
// application log, and an asynchronous dispatcher in front of any of them.
package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/logger"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer is a Kafka-backed implementation of the AuditService.
type KafkaProducer struct {
	writer messageWriter
	logger logger.Logger
}

var _ service.AuditService = (*KafkaProducer)(nil)

// NewKafkaProducer creates a new KafkaProducer.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.AuditTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: false,
	}
	return newKafkaProducer(writer, log)
}

func newKafkaProducer(w messageWriter, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: w,
		logger: log.WithComponent("KafkaProducer"),
	}
}

// LogEvent sends an audit event to the Kafka topic. Events are keyed by tenant so a
// tenant's trail stays ordered within one partition.
func (p *KafkaProducer) LogEvent(ctx context.Context, event *models.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal audit event", err)
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.TenantID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(ctx, "failed to write audit event to Kafka", err,
			logger.String("event_type", string(event.EventType)),
		)
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
