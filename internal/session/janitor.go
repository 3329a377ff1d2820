package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// JanitorConfig holds configuration for the periodic session cleanup.
type JanitorConfig struct {
	// Interval between cleanup rounds.
	// Default: 1 minute
	Interval time.Duration

	// Grace is how far past expiry a session must be before cleanup.
	// Default: 5 minutes
	Grace time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *JanitorConfig) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = time.Minute
	}
	if c.Grace == 0 {
		c.Grace = 5 * time.Minute
	}
}

// Janitor periodically removes expired sessions and returns their keys to
// the session pool.
type Janitor struct {
	manager *Manager
	cfg     JanitorConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewJanitor creates the periodic session cleanup job.
func NewJanitor(manager *Manager, cfg JanitorConfig) *Janitor {
	cfg.ApplyDefaults()
	return &Janitor{
		manager: manager,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the cleanup loop.
func (j *Janitor) Start(ctx context.Context) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := j.manager.CleanupExpired(ctx, j.cfg.Grace); err != nil {
					log.Error().Err(err).Msg("Session cleanup round failed")
				}
			case <-j.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals the cleanup loop to finish and waits for it.
func (j *Janitor) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}
