package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nangoServer(t *testing.T, wantPath string, records []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wantPath, r.URL.Path)
		assert.Equal(t, "Bearer test-secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.URL.Query().Get("connectionId"))

		json.NewEncoder(w).Encode(map[string]any{"records": records})
	}))
}

func TestGmailAdapter_Fetch(t *testing.T) {
	server := nangoServer(t, "/sync/gmail-sync/records", []map[string]any{
		{
			"id":        "m1",
			"threadId":  "t1",
			"subject":   "Pilot kickoff",
			"body":      "Let's schedule a call next week",
			"date":      "2026-02-10T09:30:00Z",
			"from":      "a@x.com",
			"from_name": "Alice",
		},
		{
			// No ids: must be skipped, not an error.
			"body": "orphan",
		},
		{
			"id":       "m2",
			"threadId": "t1",
			"body":     "no date on this one",
		},
	})
	defer server.Close()

	adapter := NewGmailAdapter(NewNangoClient(server.URL, "test-secret"))
	messages, err := adapter.Fetch(context.Background(), "conn-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	first := messages[0]
	assert.Equal(t, "m1", first.ID)
	assert.Equal(t, "t1", first.ConversationID)
	assert.Equal(t, "Pilot kickoff", first.ConversationTitle)
	assert.Equal(t, "a@x.com", first.SenderEmail)
	assert.Equal(t, "Alice", first.SenderName)
	assert.Equal(t, "gmail", first.Source)
	assert.Equal(t, time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC), first.Timestamp)

	// Missing date falls back to ingestion time.
	assert.WithinDuration(t, time.Now().UTC(), messages[1].Timestamp, time.Minute)
}

func TestSlackAdapter_Fetch(t *testing.T) {
	server := nangoServer(t, "/sync/slack-messages/records", []map[string]any{
		{
			"id":         "s1",
			"channel_id": "C042",
			"ts":         "1700000000.000100",
			"thread_ts":  "1699999999.000001",
			"text":       "can we schedule a meeting?",
			"user":       "u123",
			"user_name":  "Bob",
		},
		{
			"id":         "s2",
			"channel_id": "C042",
			"ts":         "1700000100.000200",
			"text":       "standalone message",
			"user":       "u123",
		},
	})
	defer server.Close()

	adapter := NewSlackAdapter(NewNangoClient(server.URL, "test-secret"))
	messages, err := adapter.Fetch(context.Background(), "conn-2")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	threaded := messages[0]
	assert.Equal(t, "s1", threaded.ID)
	// Thread id is namespaced and keyed by the root ts.
	assert.Equal(t, "SLACK-C042-1699999999.000001", threaded.ConversationID)
	assert.Equal(t, "u123", threaded.SenderHandle)
	assert.Equal(t, "Bob", threaded.SenderName)
	assert.Equal(t, "slack", threaded.Source)
	assert.Equal(t, int64(1700000000), threaded.Timestamp.Unix())

	// Without thread_ts the message's own ts roots the conversation.
	assert.Equal(t, "SLACK-C042-1700000100.000200", messages[1].ConversationID)
}

func TestRegistry_ForPlatform(t *testing.T) {
	nango := NewNangoClient("", "secret")
	registry := NewRegistry(NewGmailAdapter(nango), NewSlackAdapter(nango))

	assert.NotNil(t, registry.ForPlatform("gmail"))
	assert.NotNil(t, registry.ForPlatform("google-gmail-oauth"))
	assert.NotNil(t, registry.ForPlatform("slack"))
	assert.Nil(t, registry.ForPlatform("carrier-pigeon"))
}

func TestNangoClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	adapter := NewGmailAdapter(NewNangoClient(server.URL, "bad-secret"))
	_, err := adapter.Fetch(context.Background(), "conn-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
