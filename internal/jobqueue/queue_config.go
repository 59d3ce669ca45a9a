package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds the tunable parameters for the ingestion job queue.
type QueueConfig struct {
	// MaxWorkers is the number of concurrent ingestion jobs. Each job makes
	// reasoning-service calls, so this also bounds concurrent LLM traffic.
	MaxWorkers int

	// MaxRetries is the maximum delivery attempts per job. River applies its
	// own backoff between attempts; idempotent message ingestion makes
	// redelivery safe.
	MaxRetries int

	// JobTimeout caps one job run. A connection sync with many messages can
	// be slow because summarization is sequential per thread.
	JobTimeout time.Duration
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers: 4,
		MaxRetries: 10,
		JobTimeout: 10 * time.Minute,
	}
}

// RiverQueueConfig converts the config to River's queue configuration format.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
