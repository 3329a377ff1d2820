package models

import "fmt"

// Worker represents an external signing backend with a declared capability
// set. Workers are loaded from configuration and immutable afterwards.
type Worker struct {
	ID           int64        `yaml:"id"`
	Name         string       `yaml:"name"`
	KeyHolder    *KeyHolder   `yaml:"keyHolder"`
	Capabilities Capabilities `yaml:"capabilities"`
}

// KeyHolder represents a physical or logical HSM partition hosting one or
// more key pools.
type KeyHolder struct {
	ID       int64            `yaml:"id"`
	Name     string           `yaml:"name"`
	Profiles []KeyPoolProfile `yaml:"profiles"`
}

// KeyUsage tags a key pool with its designated purpose.
type KeyUsage string

const (
	// KeyUsageOneTime marks keys used for exactly one signature then destroyed.
	KeyUsageOneTime KeyUsage = "one-time"
	// KeyUsageSession marks keys leased for the lifetime of a signing session.
	KeyUsageSession KeyUsage = "session"
)

// KeyPoolProfile describes one pool of pre-provisioned keys hosted by a
// key holder.
type KeyPoolProfile struct {
	// KeyAlgorithm of generated keys (e.g. "RSA", "ECDSA").
	KeyAlgorithm string `yaml:"keyAlgorithm"`

	// KeySpec passed to the key generator (e.g. "3072", "P-256").
	KeySpec string `yaml:"keySpec"`

	// AliasPrefix for generated key aliases.
	AliasPrefix string `yaml:"aliasPrefix"`

	// DesiredSize is the free-key count replenishment aims for.
	DesiredSize int `yaml:"desiredSize"`

	// MaxPerReplenish caps how many keys one replenishment batch generates.
	MaxPerReplenish int `yaml:"maxPerReplenish"`

	// Usage designates the pool as one-time or session.
	Usage KeyUsage `yaml:"usage"`

	// SignatureLimit is the per-lease signature ceiling for keys from this
	// pool (one-time pools are normally 1).
	SignatureLimit int `yaml:"signatureLimit"`
}

// Validate checks the key holder invariants. Pools are addressed by
// (algorithm, usage), so two profiles sharing that pair would feed one
// claimable pool with mixed key specs and make lease selection ambiguous.
func (h *KeyHolder) Validate() error {
	type profileKey struct {
		alg   string
		usage KeyUsage
	}
	seen := make(map[profileKey]bool)
	for _, p := range h.Profiles {
		k := profileKey{alg: p.KeyAlgorithm, usage: p.Usage}
		if seen[k] {
			return fmt.Errorf("key holder %q: duplicate pool profile for algorithm=%s usage=%s",
				h.Name, p.KeyAlgorithm, p.Usage)
		}
		seen[k] = true
		if p.DesiredSize < 0 {
			return fmt.Errorf("key holder %q: negative desired size for alias prefix %q", h.Name, p.AliasPrefix)
		}
	}
	return nil
}
