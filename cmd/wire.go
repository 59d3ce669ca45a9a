// Package cmd defines the CLI commands and the shared component wiring.
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/compass/internal/config"
	"github.com/compass/internal/database"
	"github.com/compass/internal/identity"
	"github.com/compass/internal/ingest"
	"github.com/compass/internal/reasoning"
	"github.com/compass/internal/sources"
	"github.com/compass/internal/store"
	"github.com/compass/internal/summarize"
)

// components holds the wired application graph shared by the api and ingest
// commands.
type components struct {
	cfg          *config.Config
	pool         *pgxpool.Pool
	store        *store.Store
	orchestrator *ingest.Orchestrator
}

func (c *components) Close() {
	c.pool.Close()
}

// buildComponents loads configuration and constructs the pipeline.
func buildComponents(ctx context.Context, cliCtx *cli.Context) (*components, error) {
	cfg, err := config.LoadConfig(cliCtx.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	st := store.New(pool)

	reasoner, err := reasoning.New(reasoning.Config{
		BaseURL:           cfg.Reasoning.BaseURL,
		APIKey:            cfg.Reasoning.APIKey,
		Model:             cfg.Reasoning.Model,
		Temperature:       cfg.Reasoning.Temperature,
		TimeoutSeconds:    cfg.Reasoning.TimeoutSeconds,
		RequestsPerMinute: cfg.Reasoning.RequestsPerMinute,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	nango := sources.NewNangoClient(cfg.Nango.BaseURL, cfg.Nango.SecretKey)
	registry := sources.NewRegistry(
		sources.NewGmailAdapter(nango),
		sources.NewSlackAdapter(nango),
	)

	orchestrator := ingest.New(st, registry, identity.NewResolver(st), summarize.NewEngine(reasoner))

	return &components{
		cfg:          cfg,
		pool:         pool,
		store:        st,
		orchestrator: orchestrator,
	}, nil
}
