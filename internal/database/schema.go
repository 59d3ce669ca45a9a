package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// schemaStatements creates the pipeline tables. Statements are idempotent so
// initdb can be re-run safely; River manages its own migrations separately.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		slack_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS entities_email_key ON entities (email) WHERE email IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS entities_phone_key ON entities (phone) WHERE phone IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS entities_slack_id_key ON entities (slack_id) WHERE slack_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		rolling_summary JSONB NOT NULL DEFAULT '{}',
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL REFERENCES threads(id),
		entity_id UUID REFERENCES entities(id),
		source TEXT NOT NULL,
		raw_content TEXT NOT NULL DEFAULT '',
		cleaned_content TEXT,
		timestamp TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_thread_id_idx ON messages (thread_id)`,

	`CREATE TABLE IF NOT EXISTS pending_actions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		type TEXT NOT NULL,
		data JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		source_link TEXT,
		thread_id TEXT REFERENCES threads(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS pending_actions_status_idx ON pending_actions (status)`,

	`CREATE TABLE IF NOT EXISTS ingestion_audit_log (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		source_uuid TEXT NOT NULL,
		source_platform TEXT NOT NULL,
		raw_payload JSONB,
		status TEXT NOT NULL DEFAULT 'received',
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ingestion_audit_log_status_idx ON ingestion_audit_log (status)`,
}

// InitSchema creates all pipeline tables and indexes.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	log.Info().Msg("database schema initialized")
	return nil
}
