package keypool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/telemetry"
)

// ReplenisherConfig holds configuration for the background replenishment
// job.
type ReplenisherConfig struct {
	// Interval between replenishment rounds per key holder.
	// Default: 60 seconds
	Interval time.Duration

	// GenerateMaxTries caps retries of one key generation call.
	// Default: 3
	GenerateMaxTries uint
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *ReplenisherConfig) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = 60 * time.Second
	}
	if c.GenerateMaxTries == 0 {
		c.GenerateMaxTries = 3
	}
}

// Replenisher tops up the free-key count of every configured pool profile on
// a fixed interval, one independent timer per key holder. It only ever
// inserts new free rows, so it is safe to run concurrently with in-flight
// leases.
type Replenisher struct {
	manager *Manager
	cfg     ReplenisherConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReplenisher creates a replenisher over the manager's key holders.
func NewReplenisher(manager *Manager, cfg ReplenisherConfig) *Replenisher {
	cfg.ApplyDefaults()
	return &Replenisher{
		manager: manager,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Start launches one replenishment loop per key holder.
func (r *Replenisher) Start(ctx context.Context) {
	for _, holder := range r.manager.holders {
		r.wg.Add(1)
		go func(h *models.KeyHolder) {
			defer r.wg.Done()
			r.loop(ctx, h)
		}(holder)
	}
}

// Stop signals all loops to finish and waits for them.
func (r *Replenisher) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Replenisher) loop(ctx context.Context, holder *models.KeyHolder) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.ReplenishHolder(ctx, holder)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ReplenishHolder runs one replenishment round over all profiles of a key
// holder.
func (r *Replenisher) ReplenishHolder(ctx context.Context, holder *models.KeyHolder) {
	for i := range holder.Profiles {
		if err := r.ReplenishProfile(ctx, holder, &holder.Profiles[i]); err != nil {
			log.Error().Err(err).
				Str("key_holder", holder.Name).
				Str("alias_prefix", holder.Profiles[i].AliasPrefix).
				Msg("Replenishment round failed")
		}
	}
}

// ReplenishProfile counts the free keys of one pool profile and generates up
// to MaxPerReplenish new keys when below the desired size. Generation
// failures for individual keys are logged and skipped; a partial batch is
// not fatal.
func (r *Replenisher) ReplenishProfile(ctx context.Context, holder *models.KeyHolder, profile *models.KeyPoolProfile) error {
	free, err := r.manager.store.CountFreeKeys(ctx, holder.ID, profile.KeyAlgorithm, profile.Usage)
	if err != nil {
		return fmt.Errorf("failed to count free keys: %w", err)
	}

	missing := profile.DesiredSize - free
	if missing <= 0 {
		return nil
	}
	if profile.MaxPerReplenish > 0 && missing > profile.MaxPerReplenish {
		missing = profile.MaxPerReplenish
	}

	log.Info().
		Str("key_holder", holder.Name).
		Str("algorithm", profile.KeyAlgorithm).
		Str("usage", string(profile.Usage)).
		Int("free", free).
		Int("generating", missing).
		Msg("Replenishing key pool")

	generated := 0
	for i := 0; i < missing; i++ {
		key := &models.PoolKey{
			KeyID:       uuid.Must(uuid.NewV7()),
			KeyHolderID: holder.ID,
			Algorithm:   profile.KeyAlgorithm,
			Usage:       profile.Usage,
			CreatedAt:   time.Now(),
		}
		key.Alias = fmt.Sprintf("%s-%s", profile.AliasPrefix, key.KeyID)

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, r.manager.keygen.GenerateKey(ctx, holder.Name, key.Alias, profile.KeyAlgorithm, profile.KeySpec)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(r.cfg.GenerateMaxTries))
		if err != nil {
			log.Warn().Err(err).
				Str("key_holder", holder.Name).
				Str("alias", key.Alias).
				Msg("Key generation failed, skipping")
			continue
		}

		if err := r.manager.store.InsertKey(ctx, key); err != nil {
			log.Warn().Err(err).
				Str("alias", key.Alias).
				Msg("Failed to insert generated key, skipping")
			continue
		}

		generated++
	}

	if generated > 0 {
		telemetry.GetMetrics().KeysGeneratedTotal.Add(ctx, int64(generated))
	}
	if generated < missing {
		// Logged-and-continue; the next round tries again.
		log.Warn().
			Str("key_holder", holder.Name).
			Int("wanted", missing).
			Int("generated", generated).
			Msg("Replenishment batch incomplete")
	}

	return nil
}
