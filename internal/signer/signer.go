// Package signer invokes the external signing backend with either
// pre-computed digests or raw document content and enforces the response
// invariants the rest of the core depends on.
package signer

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/trustedge/signhub/internal/backend"
	"github.com/trustedge/signhub/internal/sigerr"
	"github.com/trustedge/signhub/internal/telemetry"
)

// SignedDocuments is the result of a signing call: one signature per
// requested input, in request order, plus optional validation evidence.
type SignedDocuments struct {
	Signatures [][]byte
	Evidence   *backend.Evidence
}

// HashRequest asks for signatures over pre-computed digests.
type HashRequest struct {
	Worker   string
	KeyAlias string

	Digests         [][]byte
	DigestAlgorithm string

	SignatureAlgorithm string
	IncludeEvidence    bool
	Metadata           map[string]string
}

// ContentRequest asks for a signature over one full document payload.
type ContentRequest struct {
	Worker   string
	KeyAlias string

	Documents [][]byte

	SignatureAlgorithm string
	Packaging          string
	IncludeEvidence    bool
	Metadata           map[string]string
}

// Signer is the document signer over a backend client.
type Signer struct {
	client backend.Client
}

// New creates a document signer.
func New(client backend.Client) *Signer {
	return &Signer{client: client}
}

// SignHashes signs one or many pre-computed digests. Single-digest and batch
// requests take distinct backend paths.
func (s *Signer) SignHashes(ctx context.Context, req *HashRequest) (*SignedDocuments, error) {
	if len(req.Digests) == 0 {
		return nil, sigerr.New(sigerr.CategoryConfiguration, "no digests to sign")
	}

	opts := backend.Options{
		SignatureAlgorithm: req.SignatureAlgorithm,
		IncludeEvidence:    req.IncludeEvidence,
		Metadata:           req.Metadata,
	}

	if len(req.Digests) == 1 {
		result, err := s.client.SignDigest(ctx, req.Worker, req.KeyAlias, req.Digests[0], req.DigestAlgorithm, opts)
		if err != nil {
			return nil, sigerr.Wrap(sigerr.CategoryRemote, err)
		}
		signed := &SignedDocuments{
			Signatures: [][]byte{result.Signature},
			Evidence:   result.Evidence,
		}
		return signed, s.checkCount(ctx, req.Worker, 1, len(signed.Signatures))
	}

	result, err := s.client.SignDigests(ctx, req.Worker, req.KeyAlias, req.Digests, req.DigestAlgorithm, opts)
	if err != nil {
		return nil, sigerr.Wrap(sigerr.CategoryRemote, err)
	}

	signed := &SignedDocuments{
		Signatures: result.Signatures,
		Evidence:   result.Evidence,
	}
	return signed, s.checkCount(ctx, req.Worker, len(req.Digests), len(signed.Signatures))
}

// SignContent signs exactly one raw document payload. Multi-document content
// signing is not supported.
func (s *Signer) SignContent(ctx context.Context, req *ContentRequest) (*SignedDocuments, error) {
	if len(req.Documents) != 1 {
		return nil, sigerr.Newf(sigerr.CategoryConfiguration,
			"content signing supports exactly one document, got %d", len(req.Documents))
	}

	opts := backend.Options{
		SignatureAlgorithm: req.SignatureAlgorithm,
		Packaging:          req.Packaging,
		IncludeEvidence:    req.IncludeEvidence,
		Metadata:           req.Metadata,
	}

	result, err := s.client.SignContent(ctx, req.Worker, req.KeyAlias, req.Documents[0], opts)
	if err != nil {
		return nil, sigerr.Wrap(sigerr.CategoryRemote, err)
	}

	signed := &SignedDocuments{
		Signatures: [][]byte{result.Signature},
		Evidence:   result.Evidence,
	}
	return signed, s.checkCount(ctx, req.Worker, 1, len(signed.Signatures))
}

// checkCount enforces the one-signature-per-input post-condition. Silently
// accepting a short batch would misattribute signatures to documents.
func (s *Signer) checkCount(ctx context.Context, worker string, want, got int) error {
	if want == got {
		return nil
	}

	telemetry.GetMetrics().SignatureCountMismatches.Add(ctx, 1)
	log.Error().
		Str("worker", worker).
		Int("requested", want).
		Int("returned", got).
		Msg("Backend returned wrong signature count")

	return sigerr.Newf(sigerr.CategoryInvariant,
		"backend %q returned %d signatures for %d inputs", worker, got, want)
}
