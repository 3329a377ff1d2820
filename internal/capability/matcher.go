// Package capability routes signing requests to compatible workers by
// matching declared worker capabilities against the requirements of a
// request. The matcher is intentionally narrow: composable single-field
// predicates plus a conjunction, no scoring or ranking.
package capability

import (
	"strings"

	"github.com/trustedge/signhub/internal/models"
)

// Matcher is a predicate over a worker's declared capabilities.
type Matcher func(caps models.Capabilities) bool

// MatchesAll conjoins an arbitrary list of matchers. An empty list matches
// everything.
func MatchesAll(matchers ...Matcher) Matcher {
	return func(caps models.Capabilities) bool {
		for _, m := range matchers {
			if !m(caps) {
				return false
			}
		}
		return true
	}
}

// SupportsQualifier matches workers declaring the given signature qualifier.
func SupportsQualifier(qualifier string) Matcher {
	return func(caps models.Capabilities) bool {
		for _, q := range caps.SignatureQualifiers {
			if q == qualifier {
				return true
			}
		}
		return false
	}
}

// ProducesFormat matches workers producing the given signature format.
func ProducesFormat(format string) Matcher {
	return func(caps models.Capabilities) bool {
		return caps.SignatureFormat == format
	}
}

// MeetsConformanceLevel matches workers producing the given conformance
// level.
func MeetsConformanceLevel(level string) Matcher {
	return func(caps models.Capabilities) bool {
		return caps.ConformanceLevel == level
	}
}

// UsesPackaging matches workers using the given signature packaging.
func UsesPackaging(packaging string) Matcher {
	return func(caps models.Capabilities) bool {
		return caps.SignaturePackaging == packaging
	}
}

// SupportsAlgorithm matches workers supporting the given signature
// algorithm, compared case-insensitively.
func SupportsAlgorithm(algorithm string) Matcher {
	return func(caps models.Capabilities) bool {
		for _, a := range caps.SignatureAlgorithms {
			if strings.EqualFold(a, algorithm) {
				return true
			}
		}
		return false
	}
}

// ReturnsValidationInfo matches workers able to return revocation and
// validation evidence alongside signatures.
func ReturnsValidationInfo(required bool) Matcher {
	return func(caps models.Capabilities) bool {
		return caps.ReturnsValidationInfo == required
	}
}

// AcceptsDocumentType matches workers accepting the given input kind.
func AcceptsDocumentType(docType models.DocumentType) Matcher {
	return func(caps models.Capabilities) bool {
		for _, dt := range caps.DocumentTypes {
			if dt == docType {
				return true
			}
		}
		return false
	}
}
