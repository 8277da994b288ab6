package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/authcore/pkg/constants"
)

// AuditEvent represents a single audit trail event.
type AuditEvent struct {
	EventID    string                   `gorm:"primaryKey;size:36" json:"event_id"`
	TenantID   string                   `gorm:"index;size:64" json:"tenant_id,omitempty"`
	ActorID    string                   `json:"actor_id,omitempty"` // user id, client id, admin token id or "system"
	ClientID   string                   `gorm:"index;size:64" json:"client_id,omitempty"`
	EventType  constants.AuditEventType `gorm:"index;size:64" json:"event_type"`
	Result     string                   `json:"result"` // "success" or "failure"
	ResultCode constants.ErrorCode      `json:"result_code,omitempty"`
	IPAddress  string                   `json:"ip_address,omitempty"`
	UserAgent  string                   `json:"user_agent,omitempty"`
	TraceID    string                   `json:"trace_id,omitempty"`
	Message    string                   `json:"message,omitempty"`
	Metadata   json.RawMessage          `json:"metadata,omitempty"`
	Timestamp  time.Time                `gorm:"index" json:"timestamp"`
}

func (AuditEvent) TableName() string { return "audit_events" }

// RevocationMetadata is attached to token_revoked events for access tokens so other
// instances can mirror the revocation. RevokedUntil is when the entry may be dropped.
type RevocationMetadata struct {
	JTI          string    `json:"jti"`
	RevokedUntil time.Time `json:"revoked_until"`
}

// NewAuditEvent creates a new audit event.
func NewAuditEvent(eventType constants.AuditEventType, result string, message string) *AuditEvent {
	return &AuditEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Result:    result,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// WithTenant sets the tenant for the event.
func (a *AuditEvent) WithTenant(tenantID string) *AuditEvent {
	a.TenantID = tenantID
	return a
}

// WithActor sets the actor ID for the event.
func (a *AuditEvent) WithActor(actorID string) *AuditEvent {
	a.ActorID = actorID
	return a
}

// WithClient sets the OAuth client involved.
func (a *AuditEvent) WithClient(clientID string) *AuditEvent {
	a.ClientID = clientID
	return a
}

// WithContextInfo sets context-related information.
func (a *AuditEvent) WithContextInfo(ip, ua, traceID string) *AuditEvent {
	a.IPAddress = ip
	a.UserAgent = ua
	a.TraceID = traceID
	return a
}

// WithMetadata sets JSON metadata for the event.
func (a *AuditEvent) WithMetadata(data interface{}) *AuditEvent {
	jsonData, err := json.Marshal(data)
	if err == nil {
		a.Metadata = jsonData
	}
	return a
}

// WithResultCode sets the specific error code for failed events.
func (a *AuditEvent) WithResultCode(code constants.ErrorCode) *AuditEvent {
	a.ResultCode = code
	return a
}
