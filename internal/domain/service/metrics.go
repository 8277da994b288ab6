package service

import (
	"time"
)

// Metrics defines the interface for collecting business metrics.
// This abstraction allows the application layer to remain independent of the specific monitoring implementation (e.g., Prometheus).
type Metrics interface {
	// RecordTokenIssue records the outcome and latency of a token endpoint grant.
	RecordTokenIssue(grantType string, success bool, duration time.Duration, errorCode string)

	// RecordTokenValidation records the outcome of a JWT validation ("ok" or an error code).
	RecordTokenValidation(result string)

	// RecordCodeExchange records the outcome of an authorization code redemption.
	RecordCodeExchange(result string)

	// RecordKeyRotation records a signing key rotation attempt.
	RecordKeyRotation(success bool)

	// SetSigningKeys updates the gauge of verifiable signing keys.
	SetSigningKeys(count int)

	// RecordRateLimitHit records an event when a rate limit is triggered.
	RecordRateLimitHit(scope string)

	// RecordHTTPRequest records a served HTTP request.
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) RecordTokenIssue(string, bool, time.Duration, string) {}
func (NoopMetrics) RecordTokenValidation(string) {}
func (NoopMetrics) RecordCodeExchange(string) {}
func (NoopMetrics) RecordKeyRotation(bool) {}
func (NoopMetrics) SetSigningKeys(int) {}
func (NoopMetrics) RecordRateLimitHit(string) {}
func (NoopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
