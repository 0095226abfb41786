package webauthn

import (
	"crypto/x509"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TrustAnchorSource maps an authenticator model to the attestation root
// certificates the metadata publisher knows for it. Must be safe for
// concurrent reads.
type TrustAnchorSource interface {
	TrustAnchorsForAAGUID(aaguid uuid.UUID) ([]*x509.Certificate, error)
}

// trustAnchorMetadataService is a MetadataService over a TrustAnchorSource:
// the attestation is trusted iff its trust path chains to one of the roots
// registered for the AAGUID.
type trustAnchorMetadataService struct {
	source TrustAnchorSource
	crypto Crypto
}

// NewTrustAnchorMetadataService builds a MetadataService from a root-cert
// source. crypto may be nil, in which case the standard provider is used.
func NewTrustAnchorMetadataService(source TrustAnchorSource, crypto Crypto) MetadataService {
	if crypto == nil {
		crypto = NewStandardCrypto()
	}
	return &trustAnchorMetadataService{source: source, crypto: crypto}
}

func (s *trustAnchorMetadataService) GetAttestation(aaguid uuid.UUID, trustPath []*x509.Certificate) (AttestationMetadata, error) {
	if len(trustPath) == 0 {
		return AttestationMetadata{}, nil
	}

	roots, err := s.source.TrustAnchorsForAAGUID(aaguid)
	if err != nil {
		return AttestationMetadata{}, errors.Wrap(err, "resolving trust anchors")
	}
	if len(roots) == 0 {
		return AttestationMetadata{}, nil
	}

	if err := s.crypto.CheckCertPath(trustPath, roots); err != nil {
		// An unverifiable path is merely untrusted, not a ceremony error.
		return AttestationMetadata{}, nil
	}

	return AttestationMetadata{Trusted: true, Metadata: aaguid.String()}, nil
}

// StaticTrustAnchors is a TrustAnchorSource over a fixed map, convenient
// for configuration files and tests.
type StaticTrustAnchors map[uuid.UUID][]*x509.Certificate

func (s StaticTrustAnchors) TrustAnchorsForAAGUID(aaguid uuid.UUID) ([]*x509.Certificate, error) {
	return s[aaguid], nil
}
