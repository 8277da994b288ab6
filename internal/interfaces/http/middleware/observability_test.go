package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/logger"
)

type httpObservation struct {
	method, route string
	status        int
}

type recordingMetrics struct {
	service.NoopMetrics
	mu   sync.Mutex
	seen []httpObservation
}

func (m *recordingMetrics) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, httpObservation{method, route, status})
}

func TestObservability(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	metrics := &recordingMetrics{}

	router := gin.New()
	router.Use(Observability(provider.Tracer("test"), metrics, logger.NewNoopLogger()))
	router.GET("/api/tenant/oauth-credentials/:provider", func(c *gin.Context) {
		c.Status(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/tenant/oauth-credentials/strava?secret=x", nil)
	router.ServeHTTP(w, req)
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/missing", nil)
	router.ServeHTTP(w, req)

	require.Len(t, metrics.seen, 2)
	assert.Equal(t, httpObservation{"GET", "/api/tenant/oauth-credentials/:provider", http.StatusTeapot}, metrics.seen[0])
	assert.Equal(t, "not_found", metrics.seen[1].route)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /api/tenant/oauth-credentials/:provider", spans[0].Name())
}
