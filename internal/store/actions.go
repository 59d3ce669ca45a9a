package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/compass/internal/models"
)

// ErrInvalidTransition is returned when an action status change is requested
// on an action that is no longer pending.
var ErrInvalidTransition = errors.New("action is not pending")

// ListPendingActions returns actions newest first, optionally filtered by
// status.
func (s *Store) ListPendingActions(ctx context.Context, status string, limit int) ([]models.PendingAction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, type, data, status, confidence_score, COALESCE(source_link, ''), COALESCE(thread_id, ''), created_at, updated_at
		FROM pending_actions
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending actions: %w", err)
	}
	defer rows.Close()

	var actions []models.PendingAction
	for rows.Next() {
		var action models.PendingAction
		var dataJSON []byte
		if err := rows.Scan(&action.ID, &action.Type, &dataJSON, &action.Status,
			&action.Confidence, &action.SourceLink, &action.ThreadID,
			&action.CreatedAt, &action.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending action: %w", err)
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &action.Data); err != nil {
				return nil, fmt.Errorf("failed to decode action data: %w", err)
			}
		}
		actions = append(actions, action)
	}

	return actions, rows.Err()
}

// GetAction fetches one action by id.
func (s *Store) GetAction(ctx context.Context, id uuid.UUID) (*models.PendingAction, error) {
	var action models.PendingAction
	var dataJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, type, data, status, confidence_score, COALESCE(source_link, ''), COALESCE(thread_id, ''), created_at, updated_at
		FROM pending_actions WHERE id = $1
	`, id).Scan(&action.ID, &action.Type, &dataJSON, &action.Status,
		&action.Confidence, &action.SourceLink, &action.ThreadID,
		&action.CreatedAt, &action.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get action %s: %w", id, err)
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &action.Data); err != nil {
			return nil, fmt.Errorf("failed to decode action data: %w", err)
		}
	}
	return &action, nil
}

// UpdateActionStatus flips one pending action to approved or rejected. The
// transition is caller-driven only; the pipeline never reads the result back.
func (s *Store) UpdateActionStatus(ctx context.Context, id uuid.UUID, status string) error {
	if status != models.ActionApproved && status != models.ActionRejected {
		return fmt.Errorf("unsupported action status %q", status)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE pending_actions
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, status, models.ActionPending)
	if err != nil {
		return fmt.Errorf("failed to update action %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update action %s: %w", id, ErrInvalidTransition)
	}
	return nil
}
