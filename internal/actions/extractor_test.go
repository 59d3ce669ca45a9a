package actions

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compass/internal/identity"
	"github.com/compass/internal/models"
)

func TestExtract_CreateProfileForUnknownSenderWithEmail(t *testing.T) {
	state := models.NewConversationState()
	drafts := Extract(state, Context{
		ConversationID: "t1",
		Sender:         identity.SenderInfo{Email: "a@x.com", Name: "Alice"},
	})

	require.Len(t, drafts, 1)
	assert.Equal(t, models.ActionCreateProfile, drafts[0].Type)
	assert.InDelta(t, 0.9, drafts[0].Confidence, 1e-9)
	assert.Equal(t, "a@x.com", drafts[0].Data["email"])
	assert.Equal(t, "new contact detected", drafts[0].Data["reasoning"])
	// Entity creation actions are not tied to a conversation.
	assert.Empty(t, drafts[0].ThreadID)
}

func TestExtract_NoCreateProfileWithoutEmail(t *testing.T) {
	drafts := Extract(models.NewConversationState(), Context{
		ConversationID: "t1",
		Sender:         identity.SenderInfo{Name: "Mystery"},
	})
	assert.Empty(t, drafts)
}

func TestExtract_NoCreateProfileWhenMatched(t *testing.T) {
	drafts := Extract(models.NewConversationState(), Context{
		ConversationID:  "t1",
		Sender:          identity.SenderInfo{Email: "a@x.com"},
		IdentityMatches: []models.EntityRef{{ID: uuid.New(), Name: "Alice"}},
	})
	assert.Empty(t, drafts)
}

func TestExtract_CalendarInviteFromScheduleTask(t *testing.T) {
	state := models.NewConversationState()
	state.StrategicContext = "Closing the pilot deal"
	state.PendingTasks = []models.PendingTask{
		{Description: "Schedule a call with Alice", Deadline: "2026-03-02", Confidence: 0.7},
		{Description: "Send the deck", Confidence: 0.9},
	}

	drafts := Extract(state, Context{
		ConversationID:  "t1",
		IdentityMatches: []models.EntityRef{{ID: uuid.New()}},
	})

	require.Len(t, drafts, 1)
	draft := drafts[0]
	assert.Equal(t, models.ActionCalendarInvite, draft.Type)
	assert.Equal(t, "t1", draft.ThreadID)
	assert.InDelta(t, 0.7, draft.Confidence, 1e-9)
	assert.Equal(t, "Schedule a call with Alice", draft.Data["title"])
	assert.Equal(t, "2026-03-02", draft.Data["deadline"])
	assert.Equal(t, "Closing the pilot deal", draft.Data["reasoning"])
	assert.Equal(t, "https://mail.google.com/mail/u/0/#all/t1", draft.SourceLink)
}

func TestExtract_MeetingTriggerCaseInsensitive(t *testing.T) {
	state := models.NewConversationState()
	state.PendingTasks = []models.PendingTask{
		{Description: "Set up a MEETING with the board", Confidence: 0.6},
	}

	drafts := Extract(state, Context{ConversationID: "t1", IdentityMatches: []models.EntityRef{{}}})
	require.Len(t, drafts, 1)
	assert.Equal(t, models.ActionCalendarInvite, drafts[0].Type)
}

func TestExtract_ZeroConfidencePreserved(t *testing.T) {
	state := models.NewConversationState()
	state.PendingTasks = []models.PendingTask{
		{Description: "schedule sync", Confidence: 0},
	}

	drafts := Extract(state, Context{ConversationID: "t1", IdentityMatches: []models.EntityRef{{}}})
	require.Len(t, drafts, 1)
	// A zero score is a real score, not a missing one. The absent-key default
	// is applied where the raw payload is parsed, not here.
	assert.InDelta(t, 0.0, drafts[0].Confidence, 1e-9)
}

func TestExtract_GenericReasoningFallback(t *testing.T) {
	state := models.NewConversationState()
	state.PendingTasks = []models.PendingTask{{Description: "schedule sync", Confidence: 0.5}}

	drafts := Extract(state, Context{ConversationID: "t1", IdentityMatches: []models.EntityRef{{}}})
	require.Len(t, drafts, 1)
	assert.Equal(t, "Derived from conversation summary.", drafts[0].Data["reasoning"])
}

func TestExtract_DuplicateTasksYieldOneDraft(t *testing.T) {
	state := models.NewConversationState()
	state.PendingTasks = []models.PendingTask{
		{Description: "Schedule the kickoff", Confidence: 0.8},
		{Description: "Schedule the kickoff", Confidence: 0.4},
	}

	drafts := Extract(state, Context{ConversationID: "t1", IdentityMatches: []models.EntityRef{{}}})

	require.Len(t, drafts, 1)
	// First occurrence wins.
	assert.InDelta(t, 0.8, drafts[0].Confidence, 1e-9)
}

func TestSourceLink(t *testing.T) {
	assert.Equal(t, "https://mail.google.com/mail/u/0/#all/abc123", SourceLink("abc123"))
	assert.Equal(t, "#", SourceLink("SLACK-C042-1700000000.000100"))
	assert.Equal(t, "#", SourceLink(""))
}
