package commands

import (
	"context"
	"fmt"

	"github.com/trustedge/signhub/internal/logger"
	postgresstore "github.com/trustedge/signhub/internal/store/postgres"
)

type MigrateCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	if c.Postgres.ConnString == "" {
		return fmt.Errorf("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}

	cfg := c.Postgres.poolConfig()
	cfg.AutoMigrate = false

	pool, err := postgresstore.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	if err := postgresstore.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed")
	return nil
}
