package cmd

import (
	"fmt"

	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/urfave/cli/v2"

	"github.com/compass/internal/config"
	"github.com/compass/internal/database"
)

// DBCommand returns the database management command.
func DBCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Manage the database",
		Subcommands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the application schema and River job tables",
				Action: runDBInit,
			},
		},
	}
}

func runDBInit(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(c.Context, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.InitSchema(c.Context, pool); err != nil {
		return err
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(c.Context, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("failed to run river migrations: %w", err)
	}

	fmt.Println("Database initialized")
	return nil
}
