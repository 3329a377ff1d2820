package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/rs/zerolog/log"
)

// kmsRawMessageLimit is the largest payload KMS signs without pre-hashing.
const kmsRawMessageLimit = 4096

// KMSBackend signs with keys held in AWS KMS. Key material never leaves the
// HSM; pool keys are addressed by alias. It implements both Client and
// KeyGenerator.
//
// KMS produces bare signatures without revocation material, so workers backed
// by it must not advertise validation info.
type KMSBackend struct {
	client *kms.Client

	// pendingWindowDays is the KMS deletion window for removed keys.
	pendingWindowDays int32
}

// NewKMSBackend creates a KMS-backed signing client from an AWS config.
func NewKMSBackend(cfg aws.Config) *KMSBackend {
	return &KMSBackend{
		client:            kms.NewFromConfig(cfg),
		pendingWindowDays: 7,
	}
}

// SignDigest signs one pre-computed digest with the aliased key.
func (b *KMSBackend) SignDigest(ctx context.Context, worker, keyAlias string, digest []byte, digestAlgorithm string, opts Options) (*Result, error) {
	algo, err := kmsSigningAlgorithm(opts.SignatureAlgorithm)
	if err != nil {
		return nil, err
	}

	out, err := b.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(aliasARN(keyAlias)),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: algo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest with key %s: %w", keyAlias, err)
	}

	return &Result{Signature: out.Signature}, nil
}

// SignDigests signs each digest in order. KMS has no batch sign API, so the
// batch is sequential; a failure aborts the remainder.
func (b *KMSBackend) SignDigests(ctx context.Context, worker, keyAlias string, digests [][]byte, digestAlgorithm string, opts Options) (*BatchResult, error) {
	signatures := make([][]byte, 0, len(digests))
	for i, digest := range digests {
		res, err := b.SignDigest(ctx, worker, keyAlias, digest, digestAlgorithm, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to sign digest %d of %d: %w", i+1, len(digests), err)
		}
		signatures = append(signatures, res.Signature)
	}
	return &BatchResult{Signatures: signatures}, nil
}

// SignContent signs a full payload. KMS hashes raw messages server side up to
// 4 KiB; larger documents must be digested by the caller and signed through
// the digest path.
func (b *KMSBackend) SignContent(ctx context.Context, worker, keyAlias string, content []byte, opts Options) (*Result, error) {
	if len(content) > kmsRawMessageLimit {
		return nil, fmt.Errorf("content of %d bytes exceeds the %d byte raw signing limit", len(content), kmsRawMessageLimit)
	}

	algo, err := kmsSigningAlgorithm(opts.SignatureAlgorithm)
	if err != nil {
		return nil, err
	}

	out, err := b.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(aliasARN(keyAlias)),
		Message:          content,
		MessageType:      types.MessageTypeRaw,
		SigningAlgorithm: algo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign content with key %s: %w", keyAlias, err)
	}

	return &Result{Signature: out.Signature}, nil
}

// GenerateKey creates a signing key and binds the alias to it. The orphaned
// key is scheduled for deletion if the alias cannot be bound.
func (b *KMSBackend) GenerateKey(ctx context.Context, keyHolderName, alias, algorithm, spec string) error {
	keySpec, err := kmsKeySpec(algorithm, spec)
	if err != nil {
		return err
	}

	created, err := b.client.CreateKey(ctx, &kms.CreateKeyInput{
		KeySpec:     keySpec,
		KeyUsage:    types.KeyUsageTypeSignVerify,
		Description: aws.String(fmt.Sprintf("pool key for %s", keyHolderName)),
	})
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	keyID := aws.ToString(created.KeyMetadata.KeyId)
	_, err = b.client.CreateAlias(ctx, &kms.CreateAliasInput{
		AliasName:   aws.String(aliasARN(alias)),
		TargetKeyId: aws.String(keyID),
	})
	if err != nil {
		b.scheduleDeletion(ctx, keyID)
		return fmt.Errorf("failed to bind alias %s: %w", alias, err)
	}

	return nil
}

// RemoveKey schedules the aliased key for deletion and drops the alias.
// Removing an unknown alias is a success no-op.
func (b *KMSBackend) RemoveKey(ctx context.Context, keyHolderName, alias string) error {
	described, err := b.client.DescribeKey(ctx, &kms.DescribeKeyInput{
		KeyId: aws.String(aliasARN(alias)),
	})
	if err != nil {
		var notFound *types.NotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to describe key %s: %w", alias, err)
	}

	keyID := aws.ToString(described.KeyMetadata.KeyId)
	_, err = b.client.ScheduleKeyDeletion(ctx, &kms.ScheduleKeyDeletionInput{
		KeyId:               aws.String(keyID),
		PendingWindowInDays: aws.Int32(b.pendingWindowDays),
	})
	if err != nil {
		var invalidState *types.KMSInvalidStateException
		if !errors.As(err, &invalidState) {
			return fmt.Errorf("failed to schedule deletion of key %s: %w", alias, err)
		}
		// Already pending deletion, still drop the alias below.
	}

	if _, err := b.client.DeleteAlias(ctx, &kms.DeleteAliasInput{
		AliasName: aws.String(aliasARN(alias)),
	}); err != nil {
		var notFound *types.NotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to delete alias %s: %w", alias, err)
		}
	}

	return nil
}

func (b *KMSBackend) scheduleDeletion(ctx context.Context, keyID string) {
	_, err := b.client.ScheduleKeyDeletion(ctx, &kms.ScheduleKeyDeletionInput{
		KeyId:               aws.String(keyID),
		PendingWindowInDays: aws.Int32(b.pendingWindowDays),
	})
	if err != nil {
		log.Error().Err(err).Str("key_id", keyID).Msg("Failed to schedule deletion of orphaned key")
	}
}

func aliasARN(alias string) string {
	return "alias/" + alias
}

// kmsSigningAlgorithm maps signature algorithm names onto KMS signing
// algorithm specs.
func kmsSigningAlgorithm(signatureAlgorithm string) (types.SigningAlgorithmSpec, error) {
	switch signatureAlgorithm {
	case "SHA256withRSA":
		return types.SigningAlgorithmSpecRsassaPkcs1V15Sha256, nil
	case "SHA384withRSA":
		return types.SigningAlgorithmSpecRsassaPkcs1V15Sha384, nil
	case "SHA512withRSA":
		return types.SigningAlgorithmSpecRsassaPkcs1V15Sha512, nil
	case "SHA256withRSAandMGF1":
		return types.SigningAlgorithmSpecRsassaPssSha256, nil
	case "SHA384withRSAandMGF1":
		return types.SigningAlgorithmSpecRsassaPssSha384, nil
	case "SHA512withRSAandMGF1":
		return types.SigningAlgorithmSpecRsassaPssSha512, nil
	case "SHA256withECDSA":
		return types.SigningAlgorithmSpecEcdsaSha256, nil
	case "SHA384withECDSA":
		return types.SigningAlgorithmSpecEcdsaSha384, nil
	case "SHA512withECDSA":
		return types.SigningAlgorithmSpecEcdsaSha512, nil
	}
	return "", fmt.Errorf("signature algorithm %q is not supported by the kms backend", signatureAlgorithm)
}

// kmsKeySpec maps pool profile key algorithm and spec onto KMS key specs.
func kmsKeySpec(algorithm, spec string) (types.KeySpec, error) {
	switch algorithm {
	case "RSA":
		switch spec {
		case "2048":
			return types.KeySpecRsa2048, nil
		case "3072":
			return types.KeySpecRsa3072, nil
		case "4096":
			return types.KeySpecRsa4096, nil
		}
	case "ECDSA":
		switch spec {
		case "P-256":
			return types.KeySpecEccNistP256, nil
		case "P-384":
			return types.KeySpecEccNistP384, nil
		case "P-521":
			return types.KeySpecEccNistP521, nil
		}
	}
	return "", fmt.Errorf("no kms key spec for algorithm %q spec %q", algorithm, spec)
}
