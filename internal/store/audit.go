package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/compass/internal/models"
)

// CreateAuditLog inserts a new audit row in 'received'. This happens
// synchronously at event acceptance, before the orchestrator job is queued,
// so that every accepted event is durably recorded.
func (s *Store) CreateAuditLog(ctx context.Context, entry *models.IngestionAuditLog) error {
	if entry.Status == "" {
		entry.Status = models.AuditReceived
	}

	var payload any
	if len(entry.RawPayload) > 0 {
		payload = entry.RawPayload
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO ingestion_audit_log (source_uuid, source_platform, raw_payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, entry.SourceUUID, entry.SourcePlatform, payload, entry.Status).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit log entry: %w", err)
	}
	return nil
}

// GetAuditLog fetches one audit row by id.
func (s *Store) GetAuditLog(ctx context.Context, id uuid.UUID) (*models.IngestionAuditLog, error) {
	var entry models.IngestionAuditLog
	var errMsg *string

	err := s.pool.QueryRow(ctx, `
		SELECT id, source_uuid, source_platform, COALESCE(raw_payload, 'null'::jsonb), status, error_message, created_at
		FROM ingestion_audit_log WHERE id = $1
	`, id).Scan(&entry.ID, &entry.SourceUUID, &entry.SourcePlatform,
		&entry.RawPayload, &entry.Status, &errMsg, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log %s: %w", id, err)
	}

	if errMsg != nil {
		entry.ErrorMessage = *errMsg
	}
	return &entry, nil
}

// UpdateAuditStatus transitions an audit row to a terminal status. Only the
// status and error message are mutable; everything else is immutable once
// written.
func (s *Store) UpdateAuditStatus(ctx context.Context, id uuid.UUID, status, errorMessage string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ingestion_audit_log
		SET status = $2, error_message = NULLIF($3, '')
		WHERE id = $1
	`, id, status, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update audit log %s: %w", id, err)
	}
	return nil
}

// ListAuditLogs returns recent audit rows, newest first, optionally filtered
// by status. Used by operational tooling to diagnose ingestion failures.
func (s *Store) ListAuditLogs(ctx context.Context, status string, limit int) ([]models.IngestionAuditLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, source_uuid, source_platform, status, COALESCE(error_message, ''), created_at
		FROM ingestion_audit_log
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []models.IngestionAuditLog
	for rows.Next() {
		var entry models.IngestionAuditLog
		if err := rows.Scan(&entry.ID, &entry.SourceUUID, &entry.SourcePlatform,
			&entry.Status, &entry.ErrorMessage, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
