package models

// Thread statuses as produced by the reasoning service. StatusUnknown is the
// normalization default when the service omits or invents a status.
const (
	StatusActive    = "active"
	StatusWaiting   = "waiting"
	StatusCompleted = "completed"
	StatusUnknown   = "unknown"
)

// ConversationState is the rolling strategic snapshot of a thread. It is
// replaced wholesale on every summarization call, never merged field by field.
type ConversationState struct {
	Status            string        `json:"status" jsonschema:"enum=active,enum=waiting,enum=completed"`
	StrategicContext  string        `json:"strategic_context" jsonschema_description:"One sentence summary of the deal/project stage"`
	KeyDecisions      []string      `json:"key_decisions" jsonschema_description:"List of confirmed agreements"`
	PendingTasks      []PendingTask `json:"pending_tasks"`
	LeveragePoints    []string      `json:"leverage_points" jsonschema_description:"Specific facts/history for negotiation"`
	SentimentAnalysis string        `json:"sentiment_analysis" jsonschema_description:"Contextual tone of the counterparty"`
	NeedsClarify      []string      `json:"needs_clarification" jsonschema_description:"Ambiguous points to follow up on"`
}

// PendingTask is one commitment surfaced by the reasoning service.
type PendingTask struct {
	Description string  `json:"description"`
	Priority    string  `json:"priority" jsonschema:"enum=high,enum=medium,enum=low"`
	Deadline    string  `json:"deadline,omitempty" jsonschema_description:"ISO date or empty"`
	Confidence  float64 `json:"confidence_score" jsonschema:"minimum=0,maximum=1"`
}

// NewConversationState returns the empty initial state for a fresh thread.
func NewConversationState() ConversationState {
	s := ConversationState{Status: StatusUnknown}
	s.normalizeCollections()
	return s
}

// Normalize coerces a state into its invariants: confidence values clamped to
// [0,1], nil collections replaced with empty ones, and an unrecognized status
// mapped to "unknown". The reasoning service output passes through here
// before anything is persisted.
func (s *ConversationState) Normalize() {
	switch s.Status {
	case StatusActive, StatusWaiting, StatusCompleted:
	default:
		s.Status = StatusUnknown
	}

	for i := range s.PendingTasks {
		if s.PendingTasks[i].Confidence < 0 {
			s.PendingTasks[i].Confidence = 0
		}
		if s.PendingTasks[i].Confidence > 1 {
			s.PendingTasks[i].Confidence = 1
		}
	}

	s.normalizeCollections()
}

func (s *ConversationState) normalizeCollections() {
	if s.KeyDecisions == nil {
		s.KeyDecisions = []string{}
	}
	if s.PendingTasks == nil {
		s.PendingTasks = []PendingTask{}
	}
	if s.LeveragePoints == nil {
		s.LeveragePoints = []string{}
	}
	if s.NeedsClarify == nil {
		s.NeedsClarify = []string{}
	}
}
