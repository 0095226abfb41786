package webauthn_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/iana"
	keyecdsa "github.com/ldclabs/cose/key/ecdsa"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/go-webauthn-rp/memstore"
	"github.com/keyfold/go-webauthn-rp/webauthn"
)

var testIdentity = webauthn.RelyingPartyIdentity{ID: "localhost", Name: "Example RP"}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newRelyingParty(t *testing.T, store *memstore.Store, options ...webauthn.Option) *webauthn.RelyingParty {
	t.Helper()
	rp, err := webauthn.New(
		testIdentity,
		[]string{"localhost"},
		store,
		append([]webauthn.Option{webauthn.WithLogger(quietLogger())}, options...)...,
	)
	require.NoError(t, err)
	return rp
}

// registerCredential seeds the store with one registration and returns the
// credential key, credential id and user handle.
func registerCredential(t *testing.T, store *memstore.Store, username string, signCount uint32) (*ecdsa.PrivateKey, []byte, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	ck, err := keyecdsa.KeyFromPublic(&key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, ck.Set(iana.KeyParameterAlg, iana.AlgorithmES256))
	coseBytes, err := cbor.Marshal(ck)
	require.NoError(t, err)

	credentialID := make([]byte, 32)
	_, err = rand.Read(credentialID)
	require.NoError(t, err)

	userHandle := []byte(username + "-user-handle")

	require.NoError(t, store.AddRegistration(memstore.CredentialRegistration{
		Username: username,
		UserIdentity: webauthn.UserIdentity{
			ID:          userHandle,
			Name:        username,
			DisplayName: username,
		},
		Credential: webauthn.RegisteredCredential{
			CredentialID:   credentialID,
			UserHandle:     userHandle,
			PublicKeyCOSE:  coseBytes,
			SignatureCount: signCount,
		},
	}))

	return key, credentialID, userHandle
}

// fixedChallenges returns the same challenge on every draw.
type fixedChallenges []byte

func (f fixedChallenges) GenerateChallenge() ([]byte, error) {
	return f, nil
}
