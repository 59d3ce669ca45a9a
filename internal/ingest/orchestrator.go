// Package ingest runs the message ingestion pipeline. The orchestrator owns
// the audit state machine: every accepted event moves from 'received' to
// exactly one of 'processed', 'failed' or 'ignored', and each message inside
// an event is committed in its own transaction so a mid-batch failure never
// loses completed work.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/compass/internal/actions"
	"github.com/compass/internal/identity"
	"github.com/compass/internal/models"
	"github.com/compass/internal/retry"
	"github.com/compass/internal/sources"
	"github.com/compass/internal/store"
	"github.com/compass/internal/summarize"
)

// ErrPermanent marks a failure that will reproduce on redelivery, such as
// schema-invalid reasoning output for a fixed input. The job layer cancels
// instead of retrying when it sees this.
var ErrPermanent = errors.New("permanent ingestion failure")

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetAuditLog(ctx context.Context, id uuid.UUID) (*models.IngestionAuditLog, error)
	UpdateAuditStatus(ctx context.Context, id uuid.UUID, status, errorMessage string) error
	MessageExists(ctx context.Context, id string) (bool, error)
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	ApplyMessage(ctx context.Context, params store.ApplyMessageParams) error
}

// Resolver resolves sender metadata to known entities.
type Resolver interface {
	Resolve(ctx context.Context, sender identity.SenderInfo) (identity.Resolution, error)
}

// Summarizer merges one message into a rolling conversation state.
type Summarizer interface {
	Update(ctx context.Context, prior models.ConversationState, newMessage string) summarize.UpdateResult
}

// Orchestrator drives one audit entry through fetch, per-message processing
// and the terminal audit transition.
type Orchestrator struct {
	store    Store
	registry *sources.Registry
	resolver Resolver
	engine   Summarizer
	retryCfg retry.Config
}

// New creates an orchestrator. The reasoning retry policy applies only to the
// summarization call; everything else fails fast and relies on job-level
// redelivery, which is safe because message ingestion is idempotent.
func New(st Store, registry *sources.Registry, resolver Resolver, engine Summarizer) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: registry,
		resolver: resolver,
		engine:   engine,
		retryCfg: retry.ReasoningConfig(),
	}
}

// ProcessAuditEntry runs the pipeline for one accepted event. The returned
// error signals the job layer to retry; the audit row is already transitioned
// to 'failed' by then, and a later retry re-transitions it on success.
func (o *Orchestrator) ProcessAuditEntry(ctx context.Context, auditID uuid.UUID) error {
	entry, err := o.store.GetAuditLog(ctx, auditID)
	if err != nil {
		return fmt.Errorf("failed to load audit entry %s: %w", auditID, err)
	}

	if entry.Status == models.AuditProcessed || entry.Status == models.AuditIgnored {
		log.Debug().
			Str("audit_id", auditID.String()).
			Str("status", entry.Status).
			Msg("audit entry already settled, skipping")
		return nil
	}

	adapter := o.registry.ForPlatform(entry.SourcePlatform)
	if adapter == nil {
		log.Info().
			Str("audit_id", auditID.String()).
			Str("platform", entry.SourcePlatform).
			Msg("no adapter for platform, ignoring event")
		if err := o.store.UpdateAuditStatus(ctx, auditID, models.AuditIgnored,
			fmt.Sprintf("no adapter for platform %q", entry.SourcePlatform)); err != nil {
			return fmt.Errorf("failed to mark audit entry ignored: %w", err)
		}
		return nil
	}

	messages, err := adapter.Fetch(ctx, entry.SourceUUID)
	if err != nil {
		o.failAudit(ctx, auditID, err)
		return fmt.Errorf("fetch failed for %s connection %s: %w",
			entry.SourcePlatform, entry.SourceUUID, err)
	}

	ingested, skipped := 0, 0
	for _, msg := range messages {
		ok, err := o.processMessage(ctx, msg)
		if err != nil {
			// Stop at the first failure. Messages already committed stay
			// committed; the retry will skip them via the idempotency check.
			o.failAudit(ctx, auditID, fmt.Errorf("message %s: %w", msg.ID, err))
			return fmt.Errorf("processing stopped at message %s: %w", msg.ID, err)
		}
		if ok {
			ingested++
		} else {
			skipped++
		}
	}

	if err := o.store.UpdateAuditStatus(ctx, auditID, models.AuditProcessed, ""); err != nil {
		return fmt.Errorf("failed to mark audit entry processed: %w", err)
	}

	log.Info().
		Str("audit_id", auditID.String()).
		Str("platform", entry.SourcePlatform).
		Int("ingested", ingested).
		Int("skipped", skipped).
		Msg("audit entry processed")

	return nil
}

// processMessage runs the pipeline stages for one message and commits the
// result atomically. Returns false without error when the message was already
// ingested.
func (o *Orchestrator) processMessage(ctx context.Context, msg sources.InboundMessage) (bool, error) {
	exists, err := o.store.MessageExists(ctx, msg.ID)
	if err != nil {
		return false, fmt.Errorf("idempotency check failed: %w", err)
	}
	if exists {
		log.Debug().Str("message_id", msg.ID).Msg("message already ingested, skipping")
		return false, nil
	}

	sender := identity.SenderInfo{
		Email:      msg.SenderEmail,
		ChatHandle: msg.SenderHandle,
		Name:       msg.SenderName,
	}
	// Resolver trouble degrades to an unresolved sender rather than failing
	// the message; the thread summary is worth keeping either way.
	resolution, err := o.resolver.Resolve(ctx, sender)
	if err != nil {
		log.Warn().
			Err(err).
			Str("message_id", msg.ID).
			Msg("identity resolution failed, continuing unresolved")
		resolution = identity.Resolution{}
	}

	prior := models.NewConversationState()
	thread, err := o.store.GetThread(ctx, msg.ConversationID)
	switch {
	case err == nil:
		prior = thread.RollingSummary
	case errors.Is(err, pgx.ErrNoRows):
		// First message of the thread starts from the empty state.
	default:
		return false, fmt.Errorf("failed to load prior state: %w", err)
	}

	var result summarize.UpdateResult
	err = retry.Do(ctx, o.retryCfg, func() error {
		result = o.engine.Update(ctx, prior, msg.Body)
		switch result.Kind {
		case summarize.StateUpdated:
			return nil
		case summarize.MalformedOutput:
			// Same input reproduces the same output; retrying is waste.
			return retry.Permanent(result.Err)
		default:
			// The engine already classified this as transient; retry it
			// whatever the error text looks like.
			return retry.Transient(result.Err)
		}
	})
	if err != nil {
		if result.Kind == summarize.MalformedOutput {
			return false, fmt.Errorf("summary update failed: %w: %w", ErrPermanent, err)
		}
		return false, fmt.Errorf("summary update failed: %w", err)
	}

	drafts := actions.Extract(result.State, actions.Context{
		ConversationID:  msg.ConversationID,
		Sender:          sender,
		IdentityMatches: resolution.Matches,
	})
	pending := make([]models.PendingAction, 0, len(drafts))
	for _, draft := range drafts {
		pending = append(pending, models.PendingAction{
			Type:       draft.Type,
			Data:       draft.Data,
			Confidence: draft.Confidence,
			SourceLink: draft.SourceLink,
			ThreadID:   draft.ThreadID,
		})
	}

	// Only an unambiguous match ties the message to an entity. Ambiguous
	// name matches stay visible in the action data but never guess a row.
	var entityID *uuid.UUID
	if len(resolution.Matches) == 1 {
		id := resolution.Matches[0].ID
		entityID = &id
	}

	err = o.store.ApplyMessage(ctx, store.ApplyMessageParams{
		Message: models.Message{
			ID:         msg.ID,
			ThreadID:   msg.ConversationID,
			EntityID:   entityID,
			Source:     msg.Source,
			RawContent: msg.Body,
			Timestamp:  msg.Timestamp,
		},
		ThreadTitle: threadTitle(msg),
		State:       result.State,
		Actions:     pending,
	})
	if err != nil {
		return false, fmt.Errorf("failed to persist message: %w", err)
	}

	log.Info().
		Str("message_id", msg.ID).
		Str("thread_id", msg.ConversationID).
		Str("source", msg.Source).
		Int("actions", len(pending)).
		Msg("message ingested")

	return true, nil
}

// failAudit records the failure on the audit row. The update itself failing is
// logged rather than propagated so the original error stays the one reported.
func (o *Orchestrator) failAudit(ctx context.Context, auditID uuid.UUID, cause error) {
	if err := o.store.UpdateAuditStatus(ctx, auditID, models.AuditFailed, cause.Error()); err != nil {
		log.Error().
			Err(err).
			Str("audit_id", auditID.String()).
			Msg("failed to record audit failure")
	}
}

func threadTitle(msg sources.InboundMessage) string {
	if msg.ConversationTitle != "" {
		return msg.ConversationTitle
	}
	return "(no subject)"
}
