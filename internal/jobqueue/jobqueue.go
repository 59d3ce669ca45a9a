// Package jobqueue runs ingestion jobs on a River queue backed by the same
// Postgres pool as the rest of the system. Webhook acceptance stays fast and
// durable: the HTTP handler writes the audit row, enqueues a job here and
// returns; the orchestrator does the slow work on a worker.
package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/compass/internal/ingest"
)

// IngestionJobArgs identifies one accepted event to process.
type IngestionJobArgs struct {
	AuditLogID uuid.UUID `json:"audit_log_id"`
}

// Kind returns the job kind for River.
func (IngestionJobArgs) Kind() string { return "ingestion_process" }

// IngestionWorker runs the orchestrator for one audit entry per job. Returning
// an error lets River retry on its own schedule, which is safe because message
// ingestion is idempotent. Permanent failures cancel the job instead.
type IngestionWorker struct {
	river.WorkerDefaults[IngestionJobArgs]
	orchestrator *ingest.Orchestrator
	config       *QueueConfig
}

// Work processes one ingestion job.
func (w *IngestionWorker) Work(ctx context.Context, job *river.Job[IngestionJobArgs]) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	log.Debug().
		Str("audit_id", job.Args.AuditLogID.String()).
		Int("attempt", job.Attempt).
		Msg("ingestion job started")

	if err := w.orchestrator.ProcessAuditEntry(ctx, job.Args.AuditLogID); err != nil {
		wrapped := fmt.Errorf("ingestion job for audit %s failed: %w", job.Args.AuditLogID, err)
		if errors.Is(err, ingest.ErrPermanent) {
			// Redelivery would replay the same reasoning input and fail the
			// same way. The audit row is already marked failed; cancel the job.
			log.Warn().
				Str("audit_id", job.Args.AuditLogID.String()).
				Err(err).
				Msg("permanent ingestion failure, cancelling job")
			return river.JobCancel(wrapped)
		}
		return wrapped
	}
	return nil
}

// JobQueue manages the River client and its workers.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	config *QueueConfig
}

// NewJobQueue creates a job queue sharing the application's connection pool.
func NewJobQueue(pool *pgxpool.Pool, orchestrator *ingest.Orchestrator, config *QueueConfig) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &IngestionWorker{orchestrator: orchestrator, config: config})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  config.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, config: config}, nil
}

// Start starts the job queue workers.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers, waiting for in-flight jobs.
func (jq *JobQueue) Stop(ctx context.Context) error {
	return jq.client.Stop(ctx)
}

// QueueIngestionJob enqueues processing for an accepted event.
func (jq *JobQueue) QueueIngestionJob(ctx context.Context, auditLogID uuid.UUID) error {
	_, err := jq.client.Insert(ctx, IngestionJobArgs{AuditLogID: auditLogID}, &river.InsertOpts{
		MaxAttempts: jq.config.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to queue ingestion job: %w", err)
	}

	log.Debug().Str("audit_id", auditLogID.String()).Msg("ingestion job queued")
	return nil
}
