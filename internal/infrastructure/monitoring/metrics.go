package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/authcore/internal/domain/service"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	TokenIssueRequests *prometheus.CounterVec
	TokenIssueLatency  *prometheus.HistogramVec
	TokenValidations   *prometheus.CounterVec
	CodeExchanges      *prometheus.CounterVec
	KeyRotations       *prometheus.CounterVec
	SigningKeys        prometheus.Gauge
	RateLimitHits      *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
}

var _ service.Metrics = (*Metrics)(nil)

// NewMetrics creates and registers the Prometheus metrics with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokenIssueRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_token_issue_requests_total",
				Help: "Total number of token endpoint requests.",
			},
			[]string{"grant_type", "result", "error_code"},
		),
		TokenIssueLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authcore_token_issue_latency_seconds",
				Help:    "Latency of token endpoint requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"grant_type"},
		),
		TokenValidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_token_validations_total",
				Help: "Total number of JWT validations by result.",
			},
			[]string{"result"},
		),
		CodeExchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_code_exchanges_total",
				Help: "Authorization code redemptions by result.",
			},
			[]string{"result"},
		),
		KeyRotations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_key_rotations_total",
				Help: "Signing key rotations.",
			},
			[]string{"result"},
		),
		SigningKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "authcore_signing_keys",
				Help: "Number of signing keys currently able to verify tokens.",
			},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_rate_limit_hits_total",
				Help: "Total number of rate limit hits.",
			},
			[]string{"scope"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_http_requests_total",
				Help: "HTTP requests by route and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authcore_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordTokenIssue records metrics for a token issue event.
func (m *Metrics) RecordTokenIssue(grantType string, success bool, duration time.Duration, errorCode string) {
	m.TokenIssueRequests.WithLabelValues(grantType, resultLabel(success), errorCode).Inc()
	m.TokenIssueLatency.WithLabelValues(grantType).Observe(duration.Seconds())
}

func (m *Metrics) RecordTokenValidation(result string) {
	m.TokenValidations.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCodeExchange(result string) {
	m.CodeExchanges.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordKeyRotation(success bool) {
	m.KeyRotations.WithLabelValues(resultLabel(success)).Inc()
}

func (m *Metrics) SetSigningKeys(count int) {
	m.SigningKeys.Set(float64(count))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(scope string) {
	m.RateLimitHits.WithLabelValues(scope).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
