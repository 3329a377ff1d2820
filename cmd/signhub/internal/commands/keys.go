package commands

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/trustedge/signhub/internal/backend"
	"github.com/trustedge/signhub/internal/keypool"
	"github.com/trustedge/signhub/internal/logger"
	postgresstore "github.com/trustedge/signhub/internal/store/postgres"
)

type KeysCmd struct {
	Replenish KeysReplenishCmd `cmd:"" help:"Top up all key pools to their desired size and exit"`
	Status    KeysStatusCmd    `cmd:"" help:"Show free key counts per pool"`
}

// KeysReplenishCmd runs one replenishment round out of band, for seeding
// fresh pools before the service takes traffic.
type KeysReplenishCmd struct {
	Config   string        `help:"path to the worker and key pool config file" default:"signhub.yaml" env:"SIGNHUB_CONFIG"`
	Backend  string        `help:"signing backend (kms or fake)" default:"kms" env:"SIGNHUB_BACKEND" enum:"kms,fake"`
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *KeysReplenishCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	cfg, err := loadServiceConfig(c.Config)
	if err != nil {
		return err
	}

	pool, cleanup, err := openKeyPool(ctx, c.Backend, c.Postgres, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	replenisher := keypool.NewReplenisher(pool, keypool.ReplenisherConfig{})
	for _, holder := range cfg.keyHolders() {
		replenisher.ReplenishHolder(ctx, holder)
	}

	log.Info().Msg("Key pool replenishment completed")
	return nil
}

// KeysStatusCmd reports the free key count for every configured pool.
type KeysStatusCmd struct {
	Config   string        `help:"path to the worker and key pool config file" default:"signhub.yaml" env:"SIGNHUB_CONFIG"`
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *KeysStatusCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	cfg, err := loadServiceConfig(c.Config)
	if err != nil {
		return err
	}

	if c.Postgres.ConnString == "" {
		return fmt.Errorf("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	dbPool, err := postgresstore.NewPool(ctx, c.Postgres.poolConfig())
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer dbPool.Close()

	keyStore := postgresstore.NewKeyPoolStore(dbPool)
	for _, holder := range cfg.keyHolders() {
		for _, profile := range holder.Profiles {
			free, err := keyStore.CountFreeKeys(ctx, holder.ID, profile.KeyAlgorithm, profile.Usage)
			if err != nil {
				return fmt.Errorf("failed to count free keys for holder %s: %w", holder.Name, err)
			}
			log.Info().
				Str("key_holder", holder.Name).
				Str("algorithm", profile.KeyAlgorithm).
				Str("usage", string(profile.Usage)).
				Int("free", free).
				Int("desired", profile.DesiredSize).
				Msg("Pool status")
		}
	}

	return nil
}

func openKeyPool(ctx context.Context, backendName string, pg PostgresFlags, cfg *ServiceConfig) (*keypool.Manager, func(), error) {
	if pg.ConnString == "" {
		return nil, nil, fmt.Errorf("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}

	dbPool, err := postgresstore.NewPool(ctx, pg.poolConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	var keygen backend.KeyGenerator
	switch backendName {
	case "kms":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			dbPool.Close()
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		keygen = backend.NewKMSBackend(awsCfg)
	default:
		keygen = &backend.FakeKeyGenerator{}
	}

	manager, err := keypool.NewManager(postgresstore.NewKeyPoolStore(dbPool), keygen, cfg.keyHolders())
	if err != nil {
		dbPool.Close()
		return nil, nil, fmt.Errorf("failed to create key pool manager: %w", err)
	}

	return manager, dbPool.Close, nil
}
