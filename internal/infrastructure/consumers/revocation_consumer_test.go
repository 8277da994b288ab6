package consumers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/internal/domain/service/mocks"
	"github.com/turtacn/authcore/internal/infrastructure/redis"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/logger"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) drained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue) == 0
}

func auditMessage(t *testing.T, offset int64, event *models.AuditEvent) kafka.Message {
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{
		Offset:  offset,
		Value:   payload,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(event.EventType)}},
	}
}

func TestRevocationConsumer_MirrorsRevocations(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := service.ClockFunc(func() time.Time { return now })
	store := redis.NewMemoryRevocationStore(clock)

	revoked := models.NewAuditEvent(constants.AuditEventTokenRevoked, "success", "access token revoked").
		WithMetadata(models.RevocationMetadata{JTI: "jti-live", RevokedUntil: now.Add(time.Hour)})
	expired := models.NewAuditEvent(constants.AuditEventTokenRevoked, "success", "access token revoked").
		WithMetadata(models.RevocationMetadata{JTI: "jti-expired", RevokedUntil: now.Add(-time.Minute)})
	refresh := models.NewAuditEvent(constants.AuditEventTokenRevoked, "success", "refresh token revoked")
	issued := models.NewAuditEvent(constants.AuditEventTokenIssued, "success", "token issued")

	reader := &fakeReader{queue: []kafka.Message{
		auditMessage(t, 1, issued),
		auditMessage(t, 2, revoked),
		auditMessage(t, 3, expired),
		auditMessage(t, 4, refresh),
		{Offset: 5, Value: []byte("{not json")},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newRevocationConsumer(reader, store, clock, logger.NewNoopLogger()).Run(ctx)
	}()
	require.Eventually(t, func() bool {
		reader.mu.Lock()
		defer reader.mu.Unlock()
		return len(reader.committed) == 5
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.True(t, reader.drained())
	assert.True(t, reader.closed)
	live, err := store.IsRevoked(context.Background(), "jti-live")
	require.NoError(t, err)
	assert.True(t, live)
	gone, err := store.IsRevoked(context.Background(), "jti-expired")
	require.NoError(t, err)
	assert.False(t, gone)
}

func TestRevocationConsumer_StoreFailureLeavesMessageUncommitted(t *testing.T) {
	now := time.Now()
	store := new(mocks.MockRevocationStore)
	store.On("Revoke", mock.Anything, "jti-1", mock.AnythingOfType("time.Time")).Return(assert.AnError)

	event := models.NewAuditEvent(constants.AuditEventTokenRevoked, "success", "access token revoked").
		WithMetadata(models.RevocationMetadata{JTI: "jti-1", RevokedUntil: now.Add(time.Hour).UTC()})
	c := newRevocationConsumer(&fakeReader{}, store, nil, logger.NewNoopLogger())

	err := c.handle(context.Background(), auditMessage(t, 1, event))
	assert.ErrorIs(t, err, assert.AnError)
	store.AssertExpectations(t)
}
