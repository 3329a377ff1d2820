package models

// DocumentType describes the kind of signing input a worker accepts.
type DocumentType string

const (
	DocumentTypeHash    DocumentType = "hash"    // pre-computed digests
	DocumentTypeContent DocumentType = "content" // full document payloads
)

// Capabilities is the declarative capability set attached to a signing worker.
// It is matched against the requirements of each signing request to decide
// whether the worker can serve it.
type Capabilities struct {
	// SignatureQualifiers the worker supports (e.g. "eu_eidas_qes").
	SignatureQualifiers []string `yaml:"signatureQualifiers"`

	// SignatureFormat produced by the worker (e.g. "P" for PAdES).
	SignatureFormat string `yaml:"signatureFormat"`

	// ConformanceLevel of produced signatures (e.g. "AdES-B-B").
	ConformanceLevel string `yaml:"conformanceLevel"`

	// SignaturePackaging mode (e.g. "ENVELOPED").
	SignaturePackaging string `yaml:"signaturePackaging"`

	// SignatureAlgorithms supported, matched case-insensitively
	// (e.g. "SHA256withRSA").
	SignatureAlgorithms []string `yaml:"signatureAlgorithms"`

	// DocumentTypes the worker can consume.
	DocumentTypes []DocumentType `yaml:"documentTypes"`

	// ReturnsValidationInfo is true when the worker can return revocation
	// and validation evidence alongside signatures.
	ReturnsValidationInfo bool `yaml:"returnsValidationInfo"`
}
