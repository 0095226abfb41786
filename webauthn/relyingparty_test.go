package webauthn_test

import (
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/go-webauthn-rp/memstore"
	"github.com/keyfold/go-webauthn-rp/webauthn"
)

func TestNewValidation(t *testing.T) {
	_, err := webauthn.New(webauthn.RelyingPartyIdentity{}, []string{"localhost"}, memstore.New())
	require.Error(t, err)

	_, err = webauthn.New(testIdentity, []string{"localhost"}, nil)
	require.Error(t, err)
}

func TestStartRegistration(t *testing.T) {
	store := memstore.New()
	rp := newRelyingParty(t, store,
		webauthn.WithChallengeGenerator(fixedChallenges(testChallenge(t))),
		webauthn.WithAttestationPreference(webauthn.AttestationDirect),
	)

	user := webauthn.UserIdentity{ID: []byte("alice-user-handle"), Name: "alice", DisplayName: "Alice"}
	exclude := []webauthn.PublicKeyCredentialDescriptor{
		{Type: webauthn.PublicKeyType, ID: []byte("existing")},
	}

	options, err := rp.StartRegistration(user, exclude, mo.None[webauthn.AuthenticationExtensions]())
	require.NoError(t, err)

	require.Equal(t, testIdentity, options.RP)
	require.Equal(t, user, options.User)
	require.Equal(t, testChallenge(t), options.Challenge)
	require.Equal(t, []webauthn.PublicKeyCredentialParameters{
		{Type: webauthn.PublicKeyType, Alg: -7},
	}, options.PubKeyCredParams)
	require.Equal(t, exclude, options.ExcludeCredentials)
	require.Equal(t, webauthn.AttestationDirect, options.Attestation)
}

func TestStartRegistrationRejectsBadUser(t *testing.T) {
	rp := newRelyingParty(t, memstore.New())

	_, err := rp.StartRegistration(webauthn.UserIdentity{Name: "alice"}, nil, mo.None[webauthn.AuthenticationExtensions]())
	require.Error(t, err)

	_, err = rp.StartRegistration(webauthn.UserIdentity{ID: make([]byte, 65), Name: "alice"}, nil, mo.None[webauthn.AuthenticationExtensions]())
	require.Error(t, err)

	_, err = rp.StartRegistration(webauthn.UserIdentity{ID: []byte("handle")}, nil, mo.None[webauthn.AuthenticationExtensions]())
	require.Error(t, err)
}

func TestStartAssertion(t *testing.T) {
	rp := newRelyingParty(t, memstore.New(),
		webauthn.WithChallengeGenerator(fixedChallenges(testChallenge(t))))

	allow := []webauthn.PublicKeyCredentialDescriptor{
		{Type: webauthn.PublicKeyType, ID: []byte("cred")},
	}

	options, err := rp.StartAssertion(allow, mo.None[webauthn.AuthenticationExtensions]())
	require.NoError(t, err)
	require.Equal(t, "localhost", options.RPID)
	require.Equal(t, testChallenge(t), options.Challenge)
	require.Equal(t, allow, options.AllowCredentials)
}

func TestStartRejectsShortChallenge(t *testing.T) {
	rp := newRelyingParty(t, memstore.New(),
		webauthn.WithChallengeGenerator(fixedChallenges([]byte("too short"))))

	_, err := rp.StartAssertion(nil, mo.None[webauthn.AuthenticationExtensions]())
	require.Error(t, err)
}

func TestDefaultChallengeGenerator(t *testing.T) {
	gen := webauthn.NewRandomChallengeGenerator()

	first, err := gen.GenerateChallenge()
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := gen.GenerateChallenge()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
