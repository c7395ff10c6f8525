// Package audit records security-relevant events about targets and their
// credentials, persisting them and fanning them out on the event bus.
package audit

import (
	"context"
	"time"
)

// Severity ranks audit events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event types emitted by the target service.
const (
	EventTargetCreated         = "target_created"
	EventTargetUpdated         = "target_updated"
	EventTargetDeleted         = "target_deleted"
	EventMethodAdded           = "communication_method_added"
	EventMethodUpdated         = "communication_method_updated"
	EventMethodDeleted         = "communication_method_deleted"
	EventCredentialRotated     = "credential_rotated"
	EventConnectionTestSuccess = "connection_test_success"
	EventConnectionTestFailed  = "connection_test_failed"
	EventHealthCheck           = "target_health_checked"
	EventEmailTargetChanged    = "email_target_changed"
)

// TopicPrefix prefixes the bus topic of every audit event.
const TopicPrefix = "audit."

// Event is one audit record. Details must never carry secrets.
type Event struct {
	ID           int64          `json:"id,omitempty"`
	EventType    string         `json:"event_type"`
	UserID       string         `json:"user_id,omitempty"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	Details      map[string]any `json:"details,omitempty"`
	Severity     Severity       `json:"severity"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Logger is the audit collaborator. Implementations are best effort: they
// never return an error and never block the caller on audit failures.
type Logger interface {
	LogEvent(ctx context.Context, event Event)
}

type userIDKey struct{}

// WithUserID returns a context carrying the acting user's id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the acting user's id, or "system".
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok && id != "" {
		return id
	}
	return "system"
}

// Discard is a Logger that drops every event.
type Discard struct{}

// LogEvent implements Logger.
func (Discard) LogEvent(context.Context, Event) {}
