// Package actions derives follow-up action drafts from conversation state.
// This is a deterministic, auditable policy layer sitting between untrusted
// reasoning-service output and side-effecting actions: trigger phrases and
// confidence thresholds can be tuned here without touching the reasoning
// integration, and no reasoning call ever happens in this package.
package actions

import (
	"fmt"
	"strings"

	"github.com/compass/internal/identity"
	"github.com/compass/internal/models"
)

// Trigger phrases for calendar_invite drafts.
var calendarTriggers = []string{"schedule", "meeting"}

const (
	createProfileConfidence = 0.9
	genericReasoning        = "Derived from conversation summary."
)

// Context carries the per-message inputs the rules need besides the state.
type Context struct {
	ConversationID  string
	Sender          identity.SenderInfo
	IdentityMatches []models.EntityRef
}

// Draft is a pending action candidate before persistence assigns an id.
type Draft struct {
	Type       string
	ThreadID   string
	Data       map[string]any
	Confidence float64
	SourceLink string
}

// Extract applies the policy rules to an updated conversation state and
// returns zero or more drafts. Within one call, duplicate
// (type, conversation, description) triples are suppressed keeping the first
// occurrence; suppression across calls is deliberately out of scope.
func Extract(state models.ConversationState, ctx Context) []Draft {
	var drafts []Draft

	// Unknown sender with a usable email: propose a new contact.
	if len(ctx.IdentityMatches) == 0 && ctx.Sender.Email != "" {
		drafts = append(drafts, Draft{
			Type:       models.ActionCreateProfile,
			Confidence: createProfileConfidence,
			Data: map[string]any{
				"name":      ctx.Sender.Name,
				"email":     ctx.Sender.Email,
				"reasoning": "new contact detected",
			},
		})
	}

	reasoning := state.StrategicContext
	if reasoning == "" {
		reasoning = genericReasoning
	}

	for _, task := range state.PendingTasks {
		if !hasCalendarTrigger(task.Description) {
			continue
		}

		drafts = append(drafts, Draft{
			Type:       models.ActionCalendarInvite,
			ThreadID:   ctx.ConversationID,
			Confidence: task.Confidence,
			SourceLink: SourceLink(ctx.ConversationID),
			Data: map[string]any{
				"title":     task.Description,
				"deadline":  task.Deadline,
				"reasoning": reasoning,
			},
		})
	}

	return dedupe(drafts)
}

func hasCalendarTrigger(description string) bool {
	lower := strings.ToLower(description)
	for _, trigger := range calendarTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// dedupe keeps the first occurrence of each (type, thread, description)
// triple within a single extraction call.
func dedupe(drafts []Draft) []Draft {
	seen := make(map[string]bool, len(drafts))
	out := drafts[:0]

	for _, draft := range drafts {
		description, _ := draft.Data["title"].(string)
		key := fmt.Sprintf("%s|%s|%s", draft.Type, draft.ThreadID, description)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, draft)
	}

	return out
}

// SourceLink builds a resolvable reference back to the originating
// conversation. Email thread ids get a Gmail deep link; namespaced chat ids
// get a placeholder since chat platforms have no stable per-thread URL here.
func SourceLink(conversationID string) string {
	if conversationID == "" {
		return "#"
	}
	if strings.HasPrefix(conversationID, "SLACK-") {
		return "#"
	}
	return "https://mail.google.com/mail/u/0/#all/" + conversationID
}
