package audit

import (
	"context"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Provisioning events
	EventTypeProvisionCreate EventType = "provision.create"
	EventTypeProvisionUpdate EventType = "provision.update"
	EventTypeProvisionDelete EventType = "provision.delete"

	// Compensation events: a forward step failed and a rollback ran
	EventTypeCompensation EventType = "provision.compensation"

	// Permission mutation events
	EventTypePermissionGrant  EventType = "permission.grant"
	EventTypePermissionRevoke EventType = "permission.revoke"
	EventTypePermissionChange EventType = "permission.change"

	// Reconciliation sweep events
	EventTypeOrphanDetected EventType = "sweep.orphan_detected"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusPartial EventStatus = "partial"
)

// Event is a single audit trail entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Stage names the backend involved: report_store or identity_store
	Stage string `json:"stage,omitempty"`

	// Email is the natural key of the affected user
	Email string `json:"email,omitempty"`

	RequestID    string                 `json:"request_id,omitempty"`
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Filter narrows a Search over the trail
type Filter struct {
	EventTypes []EventType
	Status     EventStatus
	Email      string
	Stage      string
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// Logger records audit events. Implementations must be safe for concurrent
// use; a Log failure must never fail the operation being audited.
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// NopLogger discards every event
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
