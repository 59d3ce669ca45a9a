// Package summarize maintains the per-thread rolling strategic summary. It
// delegates the natural-language reasoning to the external service and owns
// the boundary validation: whatever comes back is repaired, schema-checked
// and normalized here, never deeper in the pipeline.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"

	"github.com/compass/internal/models"
	"github.com/compass/internal/reasoning"
)

const systemPrompt = "You are a strategic Chief of Staff for a startup founder. Output only valid JSON."

const promptTemplate = `### Task: Update Founder's Communication Thread Summary

### Current Summary:
%s

### New Incoming Message:
%s

### Instructions:
1. Analyze the new message for strategic shifts, commitments, or risks.
2. Return the full updated summary object, not a diff.
3. If information is ambiguous, record it under 'needs_clarification'.
4. Focus on:
   - Strategic context: Why is this conversation happening?
   - Hard commitments: Specific tasks and deadlines.
   - Leverage points: Information the founder can use in future negotiations.

### Output Format (Strict JSON matching this schema):
%s`

// ResultKind tags the outcome of an Update call.
type ResultKind int

const (
	// StateUpdated means the service returned a schema-valid next state.
	StateUpdated ResultKind = iota
	// MalformedOutput means the service responded but the payload failed
	// validation even after repair. Retrying with the same input would
	// reproduce the same output, so callers must not retry.
	MalformedOutput
	// TransientFailure means the call itself failed (network, timeout).
	// Retryable under the shared backoff policy.
	TransientFailure
)

// UpdateResult is the tagged outcome of one summarization call. State is only
// meaningful for StateUpdated; Raw carries the offending payload for
// MalformedOutput diagnostics.
type UpdateResult struct {
	Kind  ResultKind
	State models.ConversationState
	Raw   string
	Err   error
}

// Engine merges one new message into a rolling summary per call. It holds no
// state between calls.
type Engine struct {
	service reasoning.Service
}

// NewEngine creates a summarization engine over the given reasoning service.
func NewEngine(service reasoning.Service) *Engine {
	return &Engine{service: service}
}

var (
	schemaOnce sync.Once
	schemaJSON string
)

// stateSchema returns the ConversationState JSON schema embedded in every
// request, derived from the Go struct so the contract can never drift from
// the type.
func stateSchema() string {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties:  false,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: false,
		}
		schema := reflector.Reflect(&models.ConversationState{})
		raw, err := schema.MarshalJSON()
		if err != nil {
			// Reflection over our own struct; failure here is a programming error.
			panic(fmt.Sprintf("failed to marshal conversation state schema: %v", err))
		}
		schemaJSON = string(raw)
	})
	return schemaJSON
}

// Update merges newMessage into prior and returns the next full state. The
// prior state is never modified: on anything but StateUpdated the caller
// keeps using it unchanged.
func (e *Engine) Update(ctx context.Context, prior models.ConversationState, newMessage string) UpdateResult {
	prior.Normalize()

	priorJSON, err := json.Marshal(prior)
	if err != nil {
		return UpdateResult{Kind: MalformedOutput, Err: fmt.Errorf("failed to serialize prior state: %w", err)}
	}

	prompt := fmt.Sprintf(promptTemplate, priorJSON, newMessage, stateSchema())

	raw, err := e.service.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return UpdateResult{Kind: TransientFailure, Err: err}
	}

	next, err := parseState(raw)
	if err != nil {
		log.Warn().
			Err(err).
			Int("response_bytes", len(raw)).
			Msg("reasoning service returned schema-invalid state")
		return UpdateResult{Kind: MalformedOutput, Raw: raw, Err: err}
	}

	return UpdateResult{Kind: StateUpdated, State: next}
}

// parseState validates and normalizes a raw reasoning response into a
// ConversationState. Markdown fences and minor JSON damage are tolerated;
// missing required keys or non-numeric confidences are not.
func parseState(raw string) (models.ConversationState, error) {
	var zero models.ConversationState

	cleaned, err := RepairJSON(stripFences(raw))
	if err != nil {
		return zero, fmt.Errorf("unparseable response: %w", err)
	}

	if err := validateStateKeys(cleaned); err != nil {
		return zero, err
	}

	var state models.ConversationState
	if err := json.Unmarshal([]byte(cleaned), &state); err != nil {
		return zero, fmt.Errorf("response does not match state schema: %w", err)
	}

	applyTaskDefaults(cleaned, &state)
	state.Normalize()
	return state, nil
}

const defaultTaskConfidence = 0.5

// applyTaskDefaults fills in the confidence default for tasks where the
// service omitted the key entirely. An explicit 0 is a real score and stays.
func applyTaskDefaults(cleaned string, state *models.ConversationState) {
	var payload struct {
		PendingTasks []map[string]json.RawMessage `json:"pending_tasks"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return
	}
	for i, task := range payload.PendingTasks {
		if i >= len(state.PendingTasks) {
			break
		}
		if _, ok := task["confidence_score"]; !ok {
			state.PendingTasks[i].Confidence = defaultTaskConfidence
		}
	}
}

// requiredStateKeys are the top-level keys every state payload must carry.
var requiredStateKeys = []string{
	"status",
	"strategic_context",
	"key_decisions",
	"pending_tasks",
}

// validateStateKeys enforces the structural contract before the payload is
// allowed anywhere near storage. Decoding into a generic map first keeps
// "key absent" distinguishable from "key present but zero".
func validateStateKeys(cleaned string) error {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return fmt.Errorf("response is not a JSON object: %w", err)
	}

	for _, key := range requiredStateKeys {
		if _, ok := payload[key]; !ok {
			return fmt.Errorf("response missing required key %q", key)
		}
	}

	var status string
	if err := json.Unmarshal(payload["status"], &status); err != nil {
		return fmt.Errorf("status is not a string: %w", err)
	}

	var tasks []map[string]json.RawMessage
	if err := json.Unmarshal(payload["pending_tasks"], &tasks); err != nil {
		return fmt.Errorf("pending_tasks is not a list: %w", err)
	}
	for i, task := range tasks {
		if raw, ok := task["confidence_score"]; ok {
			var confidence float64
			if err := json.Unmarshal(raw, &confidence); err != nil {
				return fmt.Errorf("pending_tasks[%d].confidence_score is not numeric: %w", i, err)
			}
		}
	}

	return nil
}

// stripFences removes a markdown code fence wrapper if the model added one.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
