package models

// AuthorizationGrant is the decoded, verified claim set (the "SAD") stating
// what a caller is allowed to sign and how many times. It is produced
// entirely outside this core from an already-validated token and is immutable
// once constructed.
type AuthorizationGrant struct {
	UserID       string
	CredentialID string

	SignatureQualifier string

	// NumSignatures is the authorized signature count for this grant.
	NumSignatures int

	// Hashes is the set of authorized document hash values. When non-empty
	// the grant is hash-linked (SCAL2) and only these exact hashes may be
	// signed.
	Hashes []string

	// HashAlgorithmOID names the digest algorithm the hashes were computed
	// with (e.g. "2.16.840.1.101.3.4.2.1" for SHA-256).
	HashAlgorithmOID string

	// ClientData is opaque data the caller attached to the authorization.
	ClientData string

	// OtherAttributes carries unrecognized claims for forward compatibility.
	OtherAttributes map[string]any
}

// HashLinked reports whether the grant follows the SCAL2 model, covering
// specific pre-hashed documents rather than an arbitrary document count.
func (g *AuthorizationGrant) HashLinked() bool {
	return len(g.Hashes) > 0
}

// AuthorizesHash reports whether the given encoded hash value is covered by
// the grant's authorized hash set.
func (g *AuthorizationGrant) AuthorizesHash(hash string) bool {
	for _, h := range g.Hashes {
		if h == hash {
			return true
		}
	}
	return false
}
