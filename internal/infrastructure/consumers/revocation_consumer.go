// Package consumers contains Kafka consumers for background processing.
package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/logger"
)

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RevocationConsumer mirrors access-token revocations published on the audit topic into
// the local revocation store, so instances without a shared Redis still reject tokens
// revoked elsewhere.
type RevocationConsumer struct {
	reader messageReader
	store  service.RevocationStore
	clock  service.Clock
	logger logger.Logger
}

// NewRevocationConsumer creates a consumer on the audit topic. Each instance joins its
// own consumer group so that every instance sees every revocation.
func NewRevocationConsumer(cfg config.KafkaConfig, store service.RevocationStore, clock service.Clock, log logger.Logger) *RevocationConsumer {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.AuditTopic,
		GroupID:     fmt.Sprintf("%s-%s", cfg.ConsumerGroup, host),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newRevocationConsumer(reader, store, clock, log)
}

func newRevocationConsumer(r messageReader, store service.RevocationStore, clock service.Clock, log logger.Logger) *RevocationConsumer {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &RevocationConsumer{
		reader: r,
		store:  store,
		clock:  clock,
		logger: log.WithComponent("RevocationConsumer"),
	}
}

// Run consumes until ctx is cancelled. It closes the reader on return.
func (c *RevocationConsumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "starting revocation consumer")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Error(context.Background(), "failed to close kafka reader", err)
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info(context.Background(), "stopping revocation consumer")
				return nil
			}
			c.logger.Error(ctx, "failed to fetch message from kafka", err)
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			// Left uncommitted so the revocation is retried.
			c.logger.Error(ctx, "failed to apply revocation", err, logger.Int64("offset", msg.Offset))
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn(ctx, "failed to commit kafka offset", logger.Err(err))
		}
	}
}

// handle applies one audit message. Events other than access-token revocations, and
// malformed payloads, are acknowledged without effect.
func (c *RevocationConsumer) handle(ctx context.Context, msg kafka.Message) error {
	if !isRevocation(msg) {
		return nil
	}

	var event models.AuditEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Warn(ctx, "skipping malformed audit event", logger.Int64("offset", msg.Offset))
		return nil
	}
	if event.EventType != constants.AuditEventTokenRevoked || len(event.Metadata) == 0 {
		return nil
	}

	var meta models.RevocationMetadata
	if err := json.Unmarshal(event.Metadata, &meta); err != nil || meta.JTI == "" {
		c.logger.Warn(ctx, "skipping revocation without jti", logger.String("event_id", event.EventID))
		return nil
	}
	if !meta.RevokedUntil.After(c.clock.Now()) {
		return nil
	}

	c.logger.Debug(ctx, "mirroring revocation", logger.String("jti", meta.JTI))
	return c.store.Revoke(ctx, meta.JTI, meta.RevokedUntil)
}

// isRevocation checks the event_type header written by the audit producer. Messages
// without the header are decoded to decide.
func isRevocation(msg kafka.Message) bool {
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			return string(h.Value) == string(constants.AuditEventTokenRevoked)
		}
	}
	return true
}
