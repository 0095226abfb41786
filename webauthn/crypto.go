package webauthn

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"

	"github.com/ldclabs/cose/iana"
	"github.com/pkg/errors"
)

// Crypto bundles the primitives the pipelines need. Implementations must be
// pure functions over their inputs.
type Crypto interface {
	// Hash is SHA-256.
	Hash(data []byte) []byte

	// VerifySignature checks signature over signedData with pub, where alg
	// is the COSE algorithm identifier the key was registered with.
	VerifySignature(pub crypto.PublicKey, alg int, signedData, signature []byte) error

	// CheckCertPath verifies that chain (leaf first) links up to one of
	// roots.
	CheckCertPath(chain, roots []*x509.Certificate) error
}

// NewStandardCrypto returns the default Crypto built on the standard
// library: SHA-256, ES256 with ASN.1/DER signatures, and the chain checks
// in CheckCertPath.
func NewStandardCrypto() Crypto {
	return standardCrypto{}
}

type standardCrypto struct{}

func (standardCrypto) Hash(data []byte) []byte {
	digest := sha256.Sum256(data)
	return digest[:]
}

func (standardCrypto) VerifySignature(pub crypto.PublicKey, alg int, signedData, signature []byte) error {
	switch alg {
	case iana.AlgorithmES256:
		ecpub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return errors.Errorf("ES256 needs an ECDSA public key, got %T", pub)
		}
		digest := sha256.Sum256(signedData)
		if !ecdsa.VerifyASN1(ecpub, digest[:], signature) {
			return errors.New("ecdsa signature verification failed")
		}
		return nil
	default:
		return errors.Errorf("unsupported signature algorithm %d", alg)
	}
}

// constantTimeEqual compares secrets without leaking the position of the
// first differing byte.
func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
