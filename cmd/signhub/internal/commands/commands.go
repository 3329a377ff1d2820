package commands

import (
	"fmt"
	"os"

	"github.com/trustedge/signhub/internal/models"
	"gopkg.in/yaml.v3"
)

type Globals struct {
	Debug   bool
	Version string
}

// ServiceConfig is the YAML deployment descriptor: the workers the service
// fronts, each with its capabilities, key holder and pool profiles.
type ServiceConfig struct {
	Workers []*models.Worker `yaml:"workers"`
}

func loadServiceConfig(path string) (*ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if len(cfg.Workers) == 0 {
		return nil, fmt.Errorf("config file %s declares no workers", path)
	}

	for _, worker := range cfg.Workers {
		if worker.Name == "" {
			return nil, fmt.Errorf("config file %s contains a worker without a name", path)
		}
		if worker.KeyHolder == nil {
			return nil, fmt.Errorf("worker %s has no key holder", worker.Name)
		}
		if err := worker.KeyHolder.Validate(); err != nil {
			return nil, fmt.Errorf("worker %s: %w", worker.Name, err)
		}
	}

	return &cfg, nil
}

// keyHolders returns the distinct key holders across all workers, in
// declaration order. Workers may share a holder.
func (c *ServiceConfig) keyHolders() []*models.KeyHolder {
	seen := make(map[int64]bool)
	var holders []*models.KeyHolder
	for _, worker := range c.Workers {
		if seen[worker.KeyHolder.ID] {
			continue
		}
		seen[worker.KeyHolder.ID] = true
		holders = append(holders, worker.KeyHolder)
	}
	return holders
}
