package audit

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/logger"
)

const (
	defaultQueueSize = 1024
	deliveryTimeout  = 5 * time.Second
)

// AsyncService queues audit events and delivers them to a sink from a background
// worker. When the queue is full the event is dropped and logged.
type AsyncService struct {
	sink   service.AuditService
	logger logger.Logger
	queue  chan *models.AuditEvent

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

var _ service.AuditService = (*AsyncService)(nil)

// NewAsyncService starts the delivery worker. queueSize <= 0 uses the default.
func NewAsyncService(sink service.AuditService, queueSize int, log logger.Logger) *AsyncService {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &AsyncService{
		sink:   sink,
		logger: log.WithComponent("AuditDispatcher"),
		queue:  make(chan *models.AuditEvent, queueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// LogEvent enqueues the event. It never blocks.
func (s *AsyncService) LogEvent(ctx context.Context, event *models.AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn(ctx, "audit event after shutdown dropped", logger.String("event_type", string(event.EventType)))
		return nil
	}
	select {
	case s.queue <- event:
	default:
		s.logger.Warn(ctx, "audit queue full, event dropped",
			logger.String("event_type", string(event.EventType)),
			logger.String("event_id", event.EventID),
		)
	}
	return nil
}

func (s *AsyncService) run() {
	defer close(s.done)
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := s.sink.LogEvent(ctx, event); err != nil {
			s.logger.Error(ctx, "audit delivery failed", err,
				logger.String("event_type", string(event.EventType)),
				logger.String("event_id", event.EventID),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits until the queue drains or ctx ends.
func (s *AsyncService) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
