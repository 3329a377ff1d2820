// Package backend defines the client contracts for the external services the
// signing core talks to: the signing backends holding key material and the
// key generator provisioning pool keys. Wire encoding is the implementation's
// concern; the core depends only on these logical contracts.
package backend

import "context"

// Evidence carries revocation and validation material returned alongside
// signatures when requested.
type Evidence struct {
	OCSPResponses [][]byte
	CRLs          [][]byte
	Certificates  [][]byte
}

// Options are the per-call signing options shared by all signing paths.
type Options struct {
	// SignatureAlgorithm requested (e.g. "SHA256withRSA").
	SignatureAlgorithm string

	// Packaging mode for content signing (e.g. "ENVELOPED").
	Packaging string

	// IncludeEvidence requests revocation/validation material with the
	// signature.
	IncludeEvidence bool

	// Metadata is opaque per-request data forwarded to the backend.
	Metadata map[string]string
}

// Result is the outcome of a single-input signing call.
type Result struct {
	Signature []byte
	Evidence  *Evidence
}

// BatchResult is the outcome of a multi-digest signing call. Signatures are
// ordered to match the request inputs.
type BatchResult struct {
	Signatures [][]byte
	Evidence   *Evidence
}

// Client is the signing backend client. Implementations must honor the
// context deadline; the core treats a timeout as a transport failure.
type Client interface {
	// SignDigest signs one pre-computed digest with the named key.
	SignDigest(ctx context.Context, worker, keyAlias string, digest []byte, digestAlgorithm string, opts Options) (*Result, error)

	// SignDigests signs a batch of pre-computed digests with the named key.
	SignDigests(ctx context.Context, worker, keyAlias string, digests [][]byte, digestAlgorithm string, opts Options) (*BatchResult, error)

	// SignContent signs one full document payload with the named key.
	SignContent(ctx context.Context, worker, keyAlias string, content []byte, opts Options) (*Result, error)
}

// KeyGenerator provisions and removes key material on a key holder. Used by
// pool replenishment and one-time key destruction, never on the signing hot
// path.
type KeyGenerator interface {
	// GenerateKey creates a new key under the alias on the key holder.
	GenerateKey(ctx context.Context, keyHolderName, alias, algorithm, spec string) error

	// RemoveKey deletes the key material under the alias. Removing an
	// unknown alias is a success no-op.
	RemoveKey(ctx context.Context, keyHolderName, alias string) error
}
