package keypool

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/telemetry"
)

// ReclaimerConfig holds configuration for the stale-lease sweep.
type ReclaimerConfig struct {
	// Interval between sweeps.
	// Default: 5 minutes
	Interval time.Duration

	// Staleness is how long a lease may be held before it is considered
	// abandoned. Must comfortably exceed the longest legitimate signing
	// call and session lifetime.
	// Default: 30 minutes
	Staleness time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *ReclaimerConfig) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = 5 * time.Minute
	}
	if c.Staleness == 0 {
		c.Staleness = 30 * time.Minute
	}
}

// Reclaimer recovers keys leased by signing calls that crashed before the
// release step. Session and long-term pool keys go back to free; one-time
// keys are destroyed since they may have signed.
type Reclaimer struct {
	manager *Manager
	cfg     ReclaimerConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReclaimer creates the stale-lease sweep over the manager's pools.
func NewReclaimer(manager *Manager, cfg ReclaimerConfig) *Reclaimer {
	cfg.ApplyDefaults()
	return &Reclaimer{
		manager: manager,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the periodic sweep.
func (r *Reclaimer) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := r.Sweep(ctx); err != nil {
					log.Error().Err(err).Msg("Stale-lease sweep failed")
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the sweep loop to finish and waits for it.
func (r *Reclaimer) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// Sweep forces keys leased longer than the staleness threshold back to free,
// or destroys them for one-time pools. Returns the number of keys reclaimed.
func (r *Reclaimer) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.cfg.Staleness)

	stale, err := r.manager.store.StaleLeasedKeys(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, key := range stale {
		// The reclaim is conditional on the lease still predating the
		// cutoff. A key re-leased between the listing and this point
		// matches nothing and stays with its new holder.
		var acted bool
		if key.Usage == models.KeyUsageOneTime {
			acted, err = r.manager.DestroyStale(ctx, key, cutoff)
		} else {
			acted, err = r.manager.ReclaimStale(ctx, key.KeyID, cutoff)
		}
		if err != nil {
			log.Warn().Err(err).
				Str("key_id", key.KeyID.String()).
				Str("usage", string(key.Usage)).
				Msg("Failed to reclaim stale lease, will retry next sweep")
			continue
		}
		if !acted {
			log.Debug().
				Str("key_id", key.KeyID.String()).
				Msg("Stale listing superseded by a newer lease, skipping")
			continue
		}

		log.Warn().
			Str("key_id", key.KeyID.String()).
			Str("alias", key.Alias).
			Str("usage", string(key.Usage)).
			Time("acquired_at", *key.AcquiredAt).
			Msg("Reclaimed stale lease")
		reclaimed++
	}

	if reclaimed > 0 {
		telemetry.GetMetrics().KeysReclaimedTotal.Add(ctx, int64(reclaimed))
	}

	return reclaimed, nil
}
