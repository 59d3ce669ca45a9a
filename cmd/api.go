package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/compass/internal/api"
	"github.com/compass/internal/jobqueue"
)

// APICommand returns the CLI command for running the API server with its
// background ingestion workers.
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the Compass API server and ingestion workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runAPI,
	}
}

func runAPI(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := buildComponents(ctx, c)
	if err != nil {
		return err
	}
	defer comps.Close()

	if port := c.Int("port"); port != 0 {
		comps.cfg.Server.Port = port
	}

	queueCfg := jobqueue.DefaultQueueConfig()
	if comps.cfg.Ingest.MaxWorkers > 0 {
		queueCfg.MaxWorkers = comps.cfg.Ingest.MaxWorkers
	}

	queue, err := jobqueue.NewJobQueue(comps.pool, comps.orchestrator, queueCfg)
	if err != nil {
		return err
	}

	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := queue.Stop(stopCtx); err != nil {
			log.Error().Err(err).Msg("job queue did not stop cleanly")
		}
	}()

	server := api.NewServer(comps.store, queue, comps.cfg)
	return server.Start(ctx)
}
