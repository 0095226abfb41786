package webauthn

import (
	"crypto/rand"
	"crypto/x509"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/mo"
)

// CredentialRepository is the store of registered credentials. All methods
// must be safe for concurrent use; the pipelines only ever read through it,
// writes happen in the calling layer.
type CredentialRepository interface {
	GetCredentialIDsForUsername(username string) ([]PublicKeyCredentialDescriptor, error)
	GetUserHandleForUsername(username string) (mo.Option[[]byte], error)
	GetUsernameForUserHandle(userHandle []byte) (mo.Option[string], error)

	// Lookup returns the credential registered under exactly this
	// (credentialID, userHandle) pair.
	Lookup(credentialID, userHandle []byte) (mo.Option[RegisteredCredential], error)

	// LookupAll returns every registration of credentialID regardless of
	// owner; registration uses it to enforce global credential id
	// uniqueness.
	LookupAll(credentialID []byte) ([]RegisteredCredential, error)
}

// ChallengeGenerator produces ceremony challenges. Implementations must be
// safe for concurrent draws and must return at least 16 cryptographically
// random octets.
type ChallengeGenerator interface {
	GenerateChallenge() ([]byte, error)
}

// AttestationMetadata is the metadata service's verdict for a trust path.
type AttestationMetadata struct {
	Trusted  bool
	Metadata any
}

// MetadataService resolves an authenticator model and its attestation trust
// path to a trust verdict. Must be safe for concurrent reads.
type MetadataService interface {
	GetAttestation(aaguid uuid.UUID, trustPath []*x509.Certificate) (AttestationMetadata, error)
}

type randomChallengeGenerator struct {
	length int
}

// NewRandomChallengeGenerator returns the default challenge source: 32
// bytes from the platform CSPRNG per draw.
func NewRandomChallengeGenerator() ChallengeGenerator {
	return randomChallengeGenerator{length: 32}
}

func (g randomChallengeGenerator) GenerateChallenge() ([]byte, error) {
	challenge := make([]byte, g.length)
	if _, err := rand.Read(challenge); err != nil {
		return nil, errors.Wrap(err, "drawing random challenge")
	}
	return challenge, nil
}
