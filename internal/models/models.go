// Package models defines the persistent domain types shared across the
// ingestion pipeline: entities, threads, messages, pending actions and the
// ingestion audit log.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Source platform labels as they arrive on audit log entries.
const (
	SourceGmail = "gmail"
	SourceSlack = "slack"
)

// Pending action types. The set is open: downstream consumers must tolerate
// types they do not recognize.
const (
	ActionCalendarInvite = "calendar_invite"
	ActionCreateProfile  = "create_profile"
)

// Pending action statuses. The pipeline only ever writes ActionPending;
// approved/rejected transitions belong to the approval UI.
const (
	ActionPending  = "pending"
	ActionApproved = "approved"
	ActionRejected = "rejected"
)

// Audit log statuses.
const (
	AuditReceived  = "received"
	AuditProcessed = "processed"
	AuditFailed    = "failed"
	AuditIgnored   = "ignored"
)

// Entity is a known human counterpart. Email, phone and slack handle are each
// independently unique when set; the pipeline never deletes entities.
type Entity struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	SlackID   string    `json:"slack_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityRef is a lightweight reference to an entity, used in identity
// resolution results.
type EntityRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Thread is a logical conversation keyed by a source-qualified external id.
// Chat-derived ids are namespaced (e.g. "SLACK-<channel>-<ts>") so they can
// never collide with email thread ids.
type Thread struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	RollingSummary ConversationState `json:"rolling_summary"`
	LastUpdated    time.Time         `json:"last_updated"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Message is one ingested unit of communication. Re-ingestion of the same id
// is an idempotent no-op, decided before any pipeline stage runs.
type Message struct {
	ID             string     `json:"id"`
	ThreadID       string     `json:"thread_id"`
	EntityID       *uuid.UUID `json:"entity_id,omitempty"`
	Source         string     `json:"source"`
	RawContent     string     `json:"raw_content"`
	CleanedContent string     `json:"cleaned_content,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	CreatedAt      time.Time  `json:"created_at"`
}

// PendingAction is a system-proposed, human-approvable follow-up. ThreadID is
// empty for entity-creation actions that are not tied to a conversation.
type PendingAction struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	Data       map[string]any `json:"data"`
	Status     string         `json:"status"`
	Confidence float64        `json:"confidence_score"`
	SourceLink string         `json:"source_link,omitempty"`
	ThreadID   string         `json:"thread_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// IngestionAuditLog records one ingestion attempt. Rows are written at event
// acceptance with status "received" and updated exactly once with a terminal
// status; everything else is immutable.
type IngestionAuditLog struct {
	ID             uuid.UUID `json:"id"`
	SourceUUID     string    `json:"source_uuid"`
	SourcePlatform string    `json:"source_platform"`
	RawPayload     []byte    `json:"raw_payload,omitempty"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
