package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compass/internal/models"
)

const gmailSyncName = "gmail-sync"

// GmailAdapter normalizes Gmail thread records from Nango. Gmail thread ids
// are used as conversation ids unchanged: email is the default namespace and
// chat adapters prefix theirs to stay out of its way.
type GmailAdapter struct {
	nango *NangoClient
}

// NewGmailAdapter creates the gmail adapter over a Nango client.
func NewGmailAdapter(nango *NangoClient) *GmailAdapter {
	return &GmailAdapter{nango: nango}
}

func (a *GmailAdapter) Platform() string { return models.SourceGmail }

type gmailRecord struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Date     string `json:"date"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
}

// Fetch returns the pending gmail messages for a connection in Nango's
// delivery order.
func (a *GmailAdapter) Fetch(ctx context.Context, connectionID string) ([]InboundMessage, error) {
	records, err := a.nango.FetchRecords(ctx, gmailSyncName, connectionID)
	if err != nil {
		return nil, fmt.Errorf("gmail sync fetch failed: %w", err)
	}

	messages := make([]InboundMessage, 0, len(records))
	for _, raw := range records {
		var record gmailRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			log.Warn().Err(err).Msg("skipping undecodable gmail record")
			continue
		}
		if record.ID == "" || record.ThreadID == "" {
			log.Warn().Str("record_id", record.ID).Msg("skipping gmail record without ids")
			continue
		}

		messages = append(messages, InboundMessage{
			ID:                record.ID,
			ConversationID:    record.ThreadID,
			ConversationTitle: record.Subject,
			Body:              record.Body,
			SenderEmail:       record.From,
			SenderName:        record.FromName,
			Source:            models.SourceGmail,
			Timestamp:         parseEmailDate(record.Date),
		})
	}

	return messages, nil
}

// parseEmailDate accepts the ISO-8601 variants Nango emits; a missing or
// unparseable date falls back to ingestion time.
func parseEmailDate(value string) time.Time {
	if value == "" {
		return time.Now().UTC()
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}

	log.Warn().Str("date", value).Msg("unparseable email date, using ingestion time")
	return time.Now().UTC()
}
