// Package process composes authorization, worker selection, key leasing,
// capacity checking and signing into the end-to-end signing flow.
//
// The per-request state machine is linear with no branching back:
// authorize -> select worker -> acquire token -> check capacity -> sign ->
// cleanup. Cleanup runs on every exit path after token acquisition,
// including cancellation.
package process

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/trustedge/signhub/internal/authorize"
	"github.com/trustedge/signhub/internal/capability"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/sigerr"
	"github.com/trustedge/signhub/internal/signer"
	"github.com/trustedge/signhub/internal/telemetry"
	"github.com/trustedge/signhub/internal/token"
)

// Request describes one signing request. Exactly one of Hashes or Documents
// must be populated.
type Request struct {
	// Hashes are base64-encoded pre-computed digests.
	Hashes []string

	// DigestAlgorithm names the algorithm the hashes were computed with,
	// forwarded to the backend (e.g. "SHA-256").
	DigestAlgorithm string

	// Documents are full document payloads.
	Documents [][]byte

	SignatureAlgorithm string
	SignatureFormat    string
	ConformanceLevel   string
	SignaturePackaging string
	SignatureQualifier string

	// IncludeEvidence requests revocation/validation material with the
	// signatures.
	IncludeEvidence bool

	Metadata map[string]string
}

func (r *Request) docCount() int {
	return len(r.Hashes) + len(r.Documents)
}

func (r *Request) documentType() models.DocumentType {
	if len(r.Documents) > 0 {
		return models.DocumentTypeContent
	}
	return models.DocumentTypeHash
}

// Orchestrator is the single entry point of the signing core.
type Orchestrator struct {
	workers *capability.Selector
	tokens  *token.Selector
	signer  *signer.Signer

	hashAuth authorize.HashAuthorizer
	docAuth  authorize.DocumentAuthorizer
}

// NewOrchestrator wires the signing flow together.
func NewOrchestrator(workers *capability.Selector, tokens *token.Selector, sgn *signer.Signer) *Orchestrator {
	return &Orchestrator{
		workers: workers,
		tokens:  tokens,
		signer:  sgn,
	}
}

// Capabilities exposes the read-only capability projections for service
// discovery.
func (o *Orchestrator) Capabilities() *capability.Selector {
	return o.workers
}

// Sign runs the end-to-end signing flow for one request.
func (o *Orchestrator) Sign(ctx context.Context, req *Request, tokenCfg token.Config, grant *models.AuthorizationGrant) (signed *signer.SignedDocuments, err error) {
	started := time.Now()
	metrics := telemetry.GetMetrics()
	metrics.SignRequestsTotal.Add(ctx, 1)

	// Unexpected panics from collaborators become typed invariant errors at
	// this boundary instead of escaping to the transport layer.
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Signing flow panicked")
			signed = nil
			err = sigerr.Newf(sigerr.CategoryInvariant, "signing flow panicked: %v", r)
		}
		if err != nil {
			metrics.SignFailuresTotal.Add(ctx, 1)
		}
		metrics.SignDuration.Record(ctx, time.Since(started).Seconds())
	}()

	if err := o.validate(req); err != nil {
		return nil, err
	}

	// 1. Authorize. Refusal and indeterminate outcomes both abort before
	// any key is touched.
	authorized, err := o.authorizeRequest(req, grant)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, sigerr.Newf(sigerr.CategoryUnauthorized,
			"grant for user %q does not authorize this request", grant.UserID)
	}

	// 2. Select a worker.
	worker, err := o.workers.Select(capability.Spec{
		SignatureQualifier:    req.SignatureQualifier,
		SignatureFormat:       req.SignatureFormat,
		ConformanceLevel:      req.ConformanceLevel,
		SignaturePackaging:    req.SignaturePackaging,
		SignatureAlgorithm:    req.SignatureAlgorithm,
		DocumentType:          req.documentType(),
		RequireValidationInfo: req.IncludeEvidence,
	})
	if err != nil {
		return nil, err
	}

	// 3. Acquire a signing token.
	tok, err := o.tokens.Acquire(ctx, tokenCfg, worker.KeyHolder.ID, keyAlgorithmFor(req.SignatureAlgorithm))
	if err != nil {
		return nil, err
	}

	// Cleanup is not skippable: it runs on success, capacity failure, sign
	// failure and cancellation alike. The detached context keeps it running
	// when the request context is already canceled.
	defer func() {
		if cerr := tok.Cleanup(context.WithoutCancel(ctx)); cerr != nil {
			log.Error().Err(cerr).
				Str("key_alias", tok.KeyAlias()).
				Msg("Token cleanup failed, stale-lease reclaimer will recover the key")
		}
	}()

	// 4. Capacity check.
	if !tok.CanSignData(req.docCount(), grant.NumSignatures) {
		return nil, sigerr.Newf(sigerr.CategoryCapacity,
			"token cannot cover %d documents under grant count %d", req.docCount(), grant.NumSignatures)
	}

	// 5. Sign.
	signed, err = o.dispatch(ctx, req, worker.Name, tok.KeyAlias())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("worker", worker.Name).
		Str("user_id", grant.UserID).
		Int("documents", req.docCount()).
		Dur("duration", time.Since(started)).
		Msg("Signed documents")

	return signed, nil
}

func (o *Orchestrator) validate(req *Request) error {
	switch {
	case len(req.Hashes) == 0 && len(req.Documents) == 0:
		return sigerr.New(sigerr.CategoryConfiguration, "request carries neither hashes nor documents")
	case len(req.Hashes) > 0 && len(req.Documents) > 0:
		return sigerr.New(sigerr.CategoryConfiguration, "request carries both hashes and documents")
	}
	return nil
}

func (o *Orchestrator) authorizeRequest(req *Request, grant *models.AuthorizationGrant) (bool, error) {
	if len(req.Hashes) > 0 {
		return o.hashAuth.Authorize(req.Hashes, grant)
	}
	return o.docAuth.Authorize(req.Documents, grant)
}

func (o *Orchestrator) dispatch(ctx context.Context, req *Request, workerName, keyAlias string) (*signer.SignedDocuments, error) {
	if len(req.Documents) > 0 {
		return o.signer.SignContent(ctx, &signer.ContentRequest{
			Worker:             workerName,
			KeyAlias:           keyAlias,
			Documents:          req.Documents,
			SignatureAlgorithm: req.SignatureAlgorithm,
			Packaging:          req.SignaturePackaging,
			IncludeEvidence:    req.IncludeEvidence,
			Metadata:           req.Metadata,
		})
	}

	digests := make([][]byte, 0, len(req.Hashes))
	for i, h := range req.Hashes {
		raw, err := base64.StdEncoding.DecodeString(h)
		if err != nil {
			return nil, sigerr.Wrap(sigerr.CategoryConfiguration,
				fmt.Errorf("hash %d is not valid base64: %w", i, err))
		}
		digests = append(digests, raw)
	}

	return o.signer.SignHashes(ctx, &signer.HashRequest{
		Worker:             workerName,
		KeyAlias:           keyAlias,
		Digests:            digests,
		DigestAlgorithm:    req.DigestAlgorithm,
		SignatureAlgorithm: req.SignatureAlgorithm,
		IncludeEvidence:    req.IncludeEvidence,
		Metadata:           req.Metadata,
	})
}

// keyAlgorithmFor derives the key algorithm of the pool to lease from a
// signature algorithm name, e.g. "SHA256withRSA" -> "RSA". PSS names carry
// an "andMGF1" padding suffix; the padding mode does not change which key
// pool can serve them.
func keyAlgorithmFor(signatureAlgorithm string) string {
	alg := signatureAlgorithm
	if idx := strings.LastIndex(strings.ToLower(alg), "with"); idx >= 0 {
		alg = alg[idx+len("with"):]
	}
	if trimmed, ok := strings.CutSuffix(alg, "andMGF1"); ok {
		return trimmed
	}
	return alg
}
