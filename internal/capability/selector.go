package capability

import (
	"sort"
	"strings"

	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/sigerr"
)

// Spec describes the capabilities a signing request requires. Zero-valued
// fields are "don't care".
type Spec struct {
	SignatureQualifier string
	SignatureFormat    string
	ConformanceLevel   string
	SignaturePackaging string
	SignatureAlgorithm string
	DocumentType       models.DocumentType

	// RequireValidationInfo restricts selection to workers that can return
	// revocation and validation evidence.
	RequireValidationInfo bool
}

// matcher builds the conjunction of matchers for the populated fields.
func (s Spec) matcher() Matcher {
	var matchers []Matcher
	if s.SignatureQualifier != "" {
		matchers = append(matchers, SupportsQualifier(s.SignatureQualifier))
	}
	if s.SignatureFormat != "" {
		matchers = append(matchers, ProducesFormat(s.SignatureFormat))
	}
	if s.ConformanceLevel != "" {
		matchers = append(matchers, MeetsConformanceLevel(s.ConformanceLevel))
	}
	if s.SignaturePackaging != "" {
		matchers = append(matchers, UsesPackaging(s.SignaturePackaging))
	}
	if s.SignatureAlgorithm != "" {
		matchers = append(matchers, SupportsAlgorithm(s.SignatureAlgorithm))
	}
	if s.DocumentType != "" {
		matchers = append(matchers, AcceptsDocumentType(s.DocumentType))
	}
	if s.RequireValidationInfo {
		matchers = append(matchers, ReturnsValidationInfo(true))
	}
	return MatchesAll(matchers...)
}

// Selector picks a worker for a request out of the configured worker list.
// Selection policy is first match in configured order.
type Selector struct {
	workers []*models.Worker
}

// NewSelector creates a selector over the configured workers. The slice order
// is the selection order.
func NewSelector(workers []*models.Worker) *Selector {
	return &Selector{workers: workers}
}

// Select returns the first worker whose capabilities satisfy the spec.
func (s *Selector) Select(spec Spec) (*models.Worker, error) {
	match := spec.matcher()
	for _, w := range s.workers {
		if match(w.Capabilities) {
			return w, nil
		}
	}
	return nil, sigerr.New(sigerr.CategoryConfiguration, "no worker with matching capabilities")
}

// Workers returns the configured workers in selection order.
func (s *Selector) Workers() []*models.Worker {
	return s.workers
}

// SupportedAlgorithms projects the distinct signature algorithms declared
// across all workers, sorted. Used by service discovery.
func (s *Selector) SupportedAlgorithms() []string {
	return s.project(func(caps models.Capabilities) []string {
		out := make([]string, 0, len(caps.SignatureAlgorithms))
		for _, a := range caps.SignatureAlgorithms {
			out = append(out, strings.ToUpper(a))
		}
		return out
	})
}

// SupportedFormats projects the distinct signature formats declared across
// all workers, sorted.
func (s *Selector) SupportedFormats() []string {
	return s.project(func(caps models.Capabilities) []string {
		return []string{caps.SignatureFormat}
	})
}

// SupportedConformanceLevels projects the distinct conformance levels
// declared across all workers, sorted.
func (s *Selector) SupportedConformanceLevels() []string {
	return s.project(func(caps models.Capabilities) []string {
		return []string{caps.ConformanceLevel}
	})
}

// SupportedPackagings projects the distinct signature packagings declared
// across all workers, sorted.
func (s *Selector) SupportedPackagings() []string {
	return s.project(func(caps models.Capabilities) []string {
		return []string{caps.SignaturePackaging}
	})
}

func (s *Selector) project(f func(models.Capabilities) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range s.workers {
		for _, v := range f(w.Capabilities) {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
