// Package store provides pgx-backed persistence for the ingestion pipeline.
// All queries are plain SQL; each unit of work owns its own transaction
// boundary and nothing here holds a transaction open across external calls.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/compass/internal/models"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new store instance.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for components that need direct access,
// such as the River job queue driver.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// ApplyMessageParams carries everything one processed message writes in a
// single transaction: the refreshed thread summary, the message row itself,
// and any action drafts derived from it.
type ApplyMessageParams struct {
	Message     models.Message
	ThreadTitle string
	State       models.ConversationState
	Actions     []models.PendingAction
}

// ApplyMessage commits one message's pipeline output atomically: the thread
// is upserted with its replaced rolling summary, the message row is inserted,
// and pending actions are created in 'pending'. The message-id primary key is
// the idempotency anchor; callers check MessageExists before running the
// pipeline, and a concurrent duplicate insert fails the transaction rather
// than producing a second row.
func (s *Store) ApplyMessage(ctx context.Context, params ApplyMessageParams) error {
	summaryJSON, err := json.Marshal(params.State)
	if err != nil {
		return fmt.Errorf("failed to marshal rolling summary: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	// Title is only set on first sight of the thread; the summary is
	// replaced wholesale every time.
	_, err = tx.Exec(ctx, `
		INSERT INTO threads (id, title, rolling_summary, last_updated, created_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET rolling_summary = EXCLUDED.rolling_summary,
		    last_updated = EXCLUDED.last_updated
	`, params.Message.ThreadID, params.ThreadTitle, summaryJSON, now)
	if err != nil {
		return fmt.Errorf("failed to upsert thread: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, thread_id, entity_id, source, raw_content, cleaned_content, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`, params.Message.ID, params.Message.ThreadID, params.Message.EntityID,
		params.Message.Source, params.Message.RawContent, params.Message.CleanedContent,
		params.Message.Timestamp, now)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	for _, action := range params.Actions {
		dataJSON, err := json.Marshal(action.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal action data: %w", err)
		}

		var threadID *string
		if action.ThreadID != "" {
			threadID = &action.ThreadID
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO pending_actions (type, data, status, confidence_score, source_link, thread_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $7)
		`, action.Type, dataJSON, models.ActionPending, action.Confidence,
			action.SourceLink, threadID, now)
		if err != nil {
			return fmt.Errorf("failed to insert pending action: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message apply: %w", err)
	}

	log.Debug().
		Str("message_id", params.Message.ID).
		Str("thread_id", params.Message.ThreadID).
		Int("actions", len(params.Actions)).
		Msg("message applied")

	return nil
}

// MessageExists reports whether a message id has already been ingested.
func (s *Store) MessageExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return exists, nil
}

// GetThread fetches a thread with its rolling summary. Returns pgx.ErrNoRows
// wrapped when the thread does not exist.
func (s *Store) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	var thread models.Thread
	var summaryJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, title, rolling_summary, last_updated, created_at
		FROM threads WHERE id = $1
	`, id).Scan(&thread.ID, &thread.Title, &summaryJSON, &thread.LastUpdated, &thread.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s: %w", id, err)
	}

	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &thread.RollingSummary); err != nil {
			return nil, fmt.Errorf("failed to decode rolling summary for thread %s: %w", id, err)
		}
	}
	thread.RollingSummary.Normalize()

	return &thread, nil
}

// ThreadExists reports whether a thread id is known.
func (s *Store) ThreadExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM threads WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check thread existence: %w", err)
	}
	return exists, nil
}

// ListThreads returns threads ordered by most recently updated.
func (s *Store) ListThreads(ctx context.Context, limit int) ([]models.Thread, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, rolling_summary, last_updated, created_at
		FROM threads ORDER BY last_updated DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []models.Thread
	for rows.Next() {
		var thread models.Thread
		var summaryJSON []byte
		if err := rows.Scan(&thread.ID, &thread.Title, &summaryJSON, &thread.LastUpdated, &thread.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		if len(summaryJSON) > 0 {
			if err := json.Unmarshal(summaryJSON, &thread.RollingSummary); err != nil {
				return nil, fmt.Errorf("failed to decode rolling summary: %w", err)
			}
		}
		thread.RollingSummary.Normalize()
		threads = append(threads, thread)
	}

	return threads, rows.Err()
}
