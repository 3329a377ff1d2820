// Package authorize validates that the documents or hashes a caller wants
// signed are covered by their authorization grant (the SAD). The outcome is
// three-way: authorized, not authorized, or "could not determine". The last
// is an error and is never conflated with a refusal.
package authorize

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/base64"
	"fmt"

	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/sigerr"
)

// hashAlgorithms maps grant hash-algorithm identifiers (dotted OIDs, plus
// common names for convenience) to digest functions.
var hashAlgorithms = map[string]crypto.Hash{
	"1.3.14.3.2.26":           crypto.SHA1,
	"2.16.840.1.101.3.4.2.1":  crypto.SHA256,
	"2.16.840.1.101.3.4.2.2":  crypto.SHA384,
	"2.16.840.1.101.3.4.2.3":  crypto.SHA512,
	"SHA-1":                   crypto.SHA1,
	"SHA-256":                 crypto.SHA256,
	"SHA-384":                 crypto.SHA384,
	"SHA-512":                 crypto.SHA512,
}

// HashAuthorizer authorizes requests carrying pre-computed document hashes
// against a hash-linked (SCAL2) grant.
type HashAuthorizer struct{}

// Authorize returns true iff the grant carries an authorized-hash set
// covering every requested hash and its signature count covers the request
// size. A grant without an authorized-hash set never authorizes anything
// (fail closed).
func (HashAuthorizer) Authorize(hashes []string, grant *models.AuthorizationGrant) (bool, error) {
	if grant == nil {
		return false, sigerr.New(sigerr.CategoryConfiguration, "authorization grant is required")
	}

	if !grant.HashLinked() {
		return false, nil
	}

	if grant.NumSignatures < len(hashes) {
		return false, nil
	}

	for _, h := range hashes {
		if !grant.AuthorizesHash(h) {
			return false, nil
		}
	}

	return true, nil
}

// DocumentAuthorizer authorizes requests carrying full document payloads. It
// digests each document with the grant's hash algorithm and delegates to the
// hash authorizer.
type DocumentAuthorizer struct {
	Hashes HashAuthorizer
}

// Authorize digests the documents and checks them against the grant. An
// unresolvable or unusable digest algorithm is a hard error, distinct from a
// refusal.
func (a DocumentAuthorizer) Authorize(documents [][]byte, grant *models.AuthorizationGrant) (bool, error) {
	if grant == nil {
		return false, sigerr.New(sigerr.CategoryConfiguration, "authorization grant is required")
	}

	hash, ok := hashAlgorithms[grant.HashAlgorithmOID]
	if !ok {
		return false, sigerr.Newf(sigerr.CategoryConfiguration, "unsupported hash algorithm %q", grant.HashAlgorithmOID)
	}
	if !hash.Available() {
		return false, sigerr.Newf(sigerr.CategoryConfiguration, "hash algorithm %q not linked into binary", grant.HashAlgorithmOID)
	}

	hashes := make([]string, 0, len(documents))
	for i, doc := range documents {
		h := hash.New()
		if _, err := h.Write(doc); err != nil {
			return false, sigerr.Wrap(sigerr.CategoryInvariant, fmt.Errorf("digest document %d: %w", i, err))
		}
		hashes = append(hashes, base64.StdEncoding.EncodeToString(h.Sum(nil)))
	}

	return a.Hashes.Authorize(hashes, grant)
}
