package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/trustedge/signhub/internal/backend"
	"github.com/trustedge/signhub/internal/capability"
	signhttp "github.com/trustedge/signhub/internal/http"
	"github.com/trustedge/signhub/internal/keypool"
	"github.com/trustedge/signhub/internal/logger"
	"github.com/trustedge/signhub/internal/process"
	"github.com/trustedge/signhub/internal/session"
	"github.com/trustedge/signhub/internal/signer"
	"github.com/trustedge/signhub/internal/store"
	memorystore "github.com/trustedge/signhub/internal/store/memory"
	postgresstore "github.com/trustedge/signhub/internal/store/postgres"
	"github.com/trustedge/signhub/internal/telemetry"
	"github.com/trustedge/signhub/internal/token"
)

type ServeCmd struct {
	Config string `help:"path to the worker and key pool config file" default:"signhub.yaml" env:"SIGNHUB_CONFIG"`
	Listen string `help:"operational HTTP listen address (health, capability discovery)" default:"127.0.0.1:8080" env:"SIGNHUB_LISTEN"`

	Backend string `help:"signing backend (kms or fake)" default:"kms" env:"SIGNHUB_BACKEND" enum:"kms,fake"`
	Tracing bool   `help:"enable tracing" default:"false" env:"SIGNHUB_TRACING"`

	// Store configuration
	StoreType string        `help:"store type (memory or postgres)" default:"memory" env:"SIGNHUB_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
	Pools     PoolJobFlags  `embed:"" prefix:"pool-"`
	Sessions  SessionFlags  `embed:"" prefix:"session-"`
}

type PostgresFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"SIGNHUB_POSTGRES_AUTO_MIGRATE"`
}

func (f *PostgresFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      f.ConnString,
		MaxConns:        f.MaxConns,
		MinConns:        f.MinConns,
		MaxConnLifetime: f.MaxConnLifetime,
		MaxConnIdleTime: f.MaxConnIdleTime,
		AutoMigrate:     f.AutoMigrate,
	}
}

// PoolJobFlags configures the key pool maintenance loops.
type PoolJobFlags struct {
	ReplenishInterval time.Duration `help:"interval between pool replenishment rounds" default:"60s" env:"SIGNHUB_POOL_REPLENISH_INTERVAL"`
	ReclaimInterval   time.Duration `help:"interval between stale lease sweeps" default:"5m" env:"SIGNHUB_POOL_RECLAIM_INTERVAL"`
	ReclaimStaleness  time.Duration `help:"lease age after which a key is considered abandoned" default:"30m" env:"SIGNHUB_POOL_RECLAIM_STALENESS"`
}

// SessionFlags configures the session cleanup loop.
type SessionFlags struct {
	CleanupInterval time.Duration `help:"interval between expired session cleanup rounds" default:"1m" env:"SIGNHUB_SESSION_CLEANUP_INTERVAL"`
	CleanupGrace    time.Duration `help:"how far past expiry a session must be before cleanup" default:"5m" env:"SIGNHUB_SESSION_CLEANUP_GRACE"`
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting signing service")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "signhub", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	cfg, err := loadServiceConfig(c.Config)
	if err != nil {
		return err
	}

	// Create stores based on store type
	var (
		keyStore     store.KeyPoolStore
		sessionStore store.SessionStore
		credStore    store.CredentialStore
	)

	switch c.StoreType {
	case "postgres":
		if c.Postgres.ConnString == "" {
			return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
		}
		pool, err := postgresstore.NewPool(ctx, c.Postgres.poolConfig())
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		keyStore = postgresstore.NewKeyPoolStore(pool)
		sessionStore = postgresstore.NewSessionStore(pool)
		credStore = postgresstore.NewCredentialStore(pool)
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		keyStore = memorystore.NewKeyPoolStore()
		sessionStore = memorystore.NewSessionStore()
		credStore = memorystore.NewCredentialStore()
		log.Info().Msg("Using in-memory stores")
	}

	// Create the signing backend
	var (
		client backend.Client
		keygen backend.KeyGenerator
	)

	switch c.Backend {
	case "kms":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		kmsBackend := backend.NewKMSBackend(awsCfg)
		client, keygen = kmsBackend, kmsBackend
		log.Info().Msg("Using KMS signing backend")

	default:
		log.Warn().Msg("Using the in-process fake backend. This should only be used in development!")
		fake := &backend.FakeClient{}
		client, keygen = fake, &backend.FakeKeyGenerator{}
	}

	// Wire the signing core
	pool, err := keypool.NewManager(keyStore, keygen, cfg.keyHolders())
	if err != nil {
		return fmt.Errorf("failed to create key pool manager: %w", err)
	}

	sessions := session.NewManager(sessionStore, credStore, pool)
	workers := capability.NewSelector(cfg.Workers)
	tokens := token.NewSelector(pool, credStore, sessions)
	orchestrator := process.NewOrchestrator(workers, tokens, signer.New(client))

	log.Info().
		Int("workers", len(cfg.Workers)).
		Strs("algorithms", workers.SupportedAlgorithms()).
		Strs("formats", workers.SupportedFormats()).
		Msg("Signing core configured")

	// Start the maintenance loops
	replenisher := keypool.NewReplenisher(pool, keypool.ReplenisherConfig{
		Interval: c.Pools.ReplenishInterval,
	})
	replenisher.Start(ctx)
	defer replenisher.Stop()

	reclaimer := keypool.NewReclaimer(pool, keypool.ReclaimerConfig{
		Interval:  c.Pools.ReclaimInterval,
		Staleness: c.Pools.ReclaimStaleness,
	})
	reclaimer.Start(ctx)
	defer reclaimer.Stop()

	janitor := session.NewJanitor(sessions, session.JanitorConfig{
		Interval: c.Sessions.CleanupInterval,
		Grace:    c.Sessions.CleanupGrace,
	})
	janitor.Start(ctx)
	defer janitor.Stop()

	// Operational HTTP surface: health and capability discovery.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/capabilities", capabilitiesHandler(orchestrator))

	srv := configureHTTPServer(c.Listen, signhttp.RequestLogger()(mux))
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Msg("Starting operational HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		return fmt.Errorf("operational HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func capabilitiesHandler(orchestrator *process.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caps := orchestrator.Capabilities()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string][]string{
			"signatureAlgorithms": caps.SupportedAlgorithms(),
			"signatureFormats":    caps.SupportedFormats(),
			"conformanceLevels":   caps.SupportedConformanceLevels(),
			"packagings":          caps.SupportedPackagings(),
		})
	}
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
