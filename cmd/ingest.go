package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/compass/internal/models"
)

// IngestCommand returns the CLI command for a one-shot sync of a connection,
// bypassing the job queue. Useful for backfills and local debugging; it runs
// the exact same pipeline the workers do, audit row included.
func IngestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Run one synchronous ingestion pass for a connection",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "connection",
				Usage:    "Nango connection id to sync",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "platform",
				Usage:    "Source platform (gmail or slack)",
				Required: true,
			},
		},
		Action: runIngest,
	}
}

func runIngest(c *cli.Context) error {
	ctx := c.Context

	comps, err := buildComponents(ctx, c)
	if err != nil {
		return err
	}
	defer comps.Close()

	entry := &models.IngestionAuditLog{
		SourceUUID:     c.String("connection"),
		SourcePlatform: c.String("platform"),
	}
	if err := comps.store.CreateAuditLog(ctx, entry); err != nil {
		return err
	}

	if err := comps.orchestrator.ProcessAuditEntry(ctx, entry.ID); err != nil {
		return fmt.Errorf("ingestion failed (audit %s): %w", entry.ID, err)
	}

	fmt.Printf("Ingestion complete (audit %s)\n", entry.ID)
	return nil
}
