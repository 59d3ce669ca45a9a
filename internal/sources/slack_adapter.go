package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"github.com/compass/internal/models"
)

const slackSyncName = "slack-messages"

// slackThreadPrefix namespaces chat-derived conversation ids so they can
// never collide with email thread ids.
const slackThreadPrefix = "SLACK-"

// SlackAdapter normalizes Slack message records from Nango. Slack has no
// first-class thread object, so the conversation key is synthesized from the
// channel and the root timestamp.
type SlackAdapter struct {
	nango *NangoClient
}

// NewSlackAdapter creates the slack adapter over a Nango client.
func NewSlackAdapter(nango *NangoClient) *SlackAdapter {
	return &SlackAdapter{nango: nango}
}

func (a *SlackAdapter) Platform() string { return models.SourceSlack }

// slackRecord is a Nango slack record: the Slack message fields plus the
// enrichment Nango adds. Embedding slack.Msg picks up ts/thread_ts/text/user
// with their canonical JSON names.
type slackRecord struct {
	slack.Msg
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// Fetch returns the pending slack messages for a connection in Nango's
// delivery order.
func (a *SlackAdapter) Fetch(ctx context.Context, connectionID string) ([]InboundMessage, error) {
	records, err := a.nango.FetchRecords(ctx, slackSyncName, connectionID)
	if err != nil {
		return nil, fmt.Errorf("slack sync fetch failed: %w", err)
	}

	messages := make([]InboundMessage, 0, len(records))
	for _, raw := range records {
		var record slackRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			log.Warn().Err(err).Msg("skipping undecodable slack record")
			continue
		}

		id := record.ID
		if id == "" {
			// Channel + ts uniquely identifies a Slack message.
			id = record.ChannelID + "-" + record.Timestamp
		}
		if record.ChannelID == "" || record.Timestamp == "" {
			log.Warn().Str("record_id", record.ID).Msg("skipping slack record without channel or ts")
			continue
		}

		rootTS := record.ThreadTimestamp
		if rootTS == "" {
			rootTS = record.Timestamp
		}
		threadID := fmt.Sprintf("%s%s-%s", slackThreadPrefix, record.ChannelID, rootTS)

		messages = append(messages, InboundMessage{
			ID:                id,
			ConversationID:    threadID,
			ConversationTitle: fmt.Sprintf("Slack Thread: %s", record.ChannelID),
			Body:              record.Text,
			SenderEmail:       record.UserEmail,
			SenderHandle:      record.User,
			SenderName:        record.UserName,
			Source:            models.SourceSlack,
			Timestamp:         parseSlackTimestamp(record.Timestamp),
		})
	}

	return messages, nil
}

// parseSlackTimestamp converts a Slack "seconds.micros" ts into a time.
// Unparseable values fall back to ingestion time.
func parseSlackTimestamp(ts string) time.Time {
	seconds, err := strconv.ParseFloat(ts, 64)
	if err != nil || seconds <= 0 {
		return time.Now().UTC()
	}

	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}
