// Package sources normalizes provider-specific records into canonical
// inbound messages. One adapter per platform; adapters are stateless and
// must namespace conversation ids so they never collide across sources.
package sources

import (
	"context"
	"strings"
	"time"
)

// InboundMessage is the canonical unit of communication every adapter
// produces. Optional sender fields are empty rather than absent; adapters
// must tolerate records with missing fields without failing the batch.
type InboundMessage struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	ConversationTitle string    `json:"conversation_title"`
	Body              string    `json:"body"`
	SenderEmail       string    `json:"sender_email,omitempty"`
	SenderHandle      string    `json:"sender_handle,omitempty"`
	SenderName        string    `json:"sender_name,omitempty"`
	Source            string    `json:"source"`
	Timestamp         time.Time `json:"timestamp"`
}

// Adapter fetches and normalizes the pending records for one connection.
// The returned slice order is the processing order: it is the provider's
// delivery order, not timestamp order, and the rolling summary inherits that
// ordering. Messages lacking a usable id are dropped, not errored.
type Adapter interface {
	Platform() string
	Fetch(ctx context.Context, connectionID string) ([]InboundMessage, error)
}

// Registry maps platform labels from audit log entries to adapters.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// ForPlatform returns the adapter matching a platform label, or nil for an
// unknown platform. Matching is by substring because provider config keys
// arrive decorated (e.g. "google-gmail-oauth").
func (r *Registry) ForPlatform(label string) Adapter {
	lower := strings.ToLower(label)
	for _, adapter := range r.adapters {
		if strings.Contains(lower, adapter.Platform()) {
			return adapter
		}
	}
	return nil
}
