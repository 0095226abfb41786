package attestation_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/go-webauthn-rp/attestation"
	"github.com/keyfold/go-webauthn-rp/authenticatordata"
	"github.com/keyfold/go-webauthn-rp/mint"
)

type attestationObject struct {
	AuthData  []byte          `cbor:"authData"`
	Format    string          `cbor:"fmt"`
	Statement cbor.RawMessage `cbor:"attStmt"`
}

type fixture struct {
	ctx     *mint.MintContext
	aaguid  uuid.UUID
	credKey *ecdsa.PrivateKey

	authData       []byte
	parsed         *authenticatordata.T
	clientDataHash []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx, err := mint.NewMintContext()
	require.NoError(t, err)

	credKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	aaguid := uuid.MustParse("a8f5745e-46a2-4f5a-bb15-3b3f2c5fcf5a")
	clientDataHash := sha256.Sum256([]byte(`{"fake":"client data"}`))

	authData, err := mint.BuildAuthenticatorData(&mint.AuthDataInput{
		RPID:                "localhost",
		SignCount:           7,
		AAGUID:              aaguid,
		CredentialID:        []byte("credential-id-0001"),
		CredentialPublicKey: &credKey.PublicKey,
	})
	require.NoError(t, err)

	parsed := &authenticatordata.T{}
	require.NoError(t, authenticatordata.Unmarshal(authData, parsed))

	return &fixture{
		ctx:            ctx,
		aaguid:         aaguid,
		credKey:        credKey,
		authData:       authData,
		parsed:         parsed,
		clientDataHash: clientDataHash[:],
	}
}

func decodeStatement(t *testing.T, attObjCBOR []byte) (string, cbor.RawMessage) {
	t.Helper()
	obj := attestationObject{}
	require.NoError(t, cbor.Unmarshal(attObjCBOR, &obj))
	return obj.Format, obj.Statement
}

func (f *fixture) mintAttestationCert(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	attKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafDER, err := mint.MintAttestationCert(&mint.AttestationCertInput{
		Context: f.ctx,
		Pubkey:  &attKey.PublicKey,
		AAGUID:  f.aaguid,
	})
	require.NoError(t, err)
	return attKey, leafDER
}

func TestNoneFormat(t *testing.T) {
	f := newFixture(t)
	registry := attestation.NewRegistry()

	attObjCBOR, err := mint.AttestNone(f.authData)
	require.NoError(t, err)
	format, stmt := decodeStatement(t, attObjCBOR)
	require.Equal(t, attestation.FormatNone, format)

	result, err := registry.Lookup(format).Verify(stmt, f.parsed, f.authData, f.clientDataHash)
	require.NoError(t, err)
	require.Equal(t, attestation.TypeNone, result.Type)
	require.Empty(t, result.TrustPath)
}

func TestNoneFormatRejectsNonEmptyStatement(t *testing.T) {
	f := newFixture(t)
	registry := attestation.NewRegistry()

	stmt, err := cbor.Marshal(map[string]any{"sig": []byte{1, 2, 3}})
	require.NoError(t, err)

	_, err = registry.Lookup("none").Verify(stmt, f.parsed, f.authData, f.clientDataHash)
	require.Error(t, err)
}

func TestUnknownFormatFallsBack(t *testing.T) {
	f := newFixture(t)
	registry := attestation.NewRegistry()

	stmt, err := cbor.Marshal(map[string]any{"whatever": true})
	require.NoError(t, err)

	result, err := registry.Lookup("android-key").Verify(stmt, f.parsed, f.authData, f.clientDataHash)
	require.NoError(t, err)
	require.Equal(t, attestation.TypeUnknown, result.Type)
	require.Empty(t, result.TrustPath)
}

func TestFIDOU2FFormat(t *testing.T) {
	f := newFixture(t)
	registry := attestation.NewRegistry()
	attKey, leafDER := f.mintAttestationCert(t)

	attObjCBOR, err := mint.AttestFIDOU2F(&mint.FIDOU2FInput{
		AuthData:           f.authData,
		ClientDataHash:     f.clientDataHash,
		AttestationKey:     attKey,
		AttestationCertDER: leafDER,
		IntermediatesDER:   [][]byte{f.ctx.IntCertDer},
	})
	require.NoError(t, err)

	format, stmt := decodeStatement(t, attObjCBOR)
	require.Equal(t, attestation.FormatFIDOU2F, format)

	result, err := registry.Lookup(format).Verify(stmt, f.parsed, f.authData, f.clientDataHash)
	require.NoError(t, err)
	require.Equal(t, attestation.TypeBasic, result.Type)
	require.Len(t, result.TrustPath, 2)
}

func TestFIDOU2FFormatRejectsWrongClientDataHash(t *testing.T) {
	f := newFixture(t)
	registry := attestation.NewRegistry()
	attKey, leafDER := f.mintAttestationCert(t)

	attObjCBOR, err := mint.AttestFIDOU2F(&mint.FIDOU2FInput{
		AuthData:           f.authData,
		ClientDataHash:     f.clientDataHash,
		AttestationKey:     attKey,
		AttestationCertDER: leafDER,
	})
	require.NoError(t, err)

	_, stmt := decodeStatement(t, attObjCBOR)

	otherHash := sha256.Sum256([]byte("something else entirely"))
	_, err = registry.Lookup("fido-u2f").Verify(stmt, f.parsed, f.authData, otherHash[:])
	require.Error(t, err)
}

func TestPackedX5CFormat(t *testing.T) {
	f := newFixture(t)
	registry := attestation.NewRegistry()
	attKey, leafDER := f.mintAttestationCert(t)

	attObjCBOR, err := mint.AttestPacked(&mint.PackedInput{
		AuthData:           f.authData,
		ClientDataHash:     f.clientDataHash,
		AttestationKey:     attKey,
		AttestationCertDER: leafDER,
		IntermediatesDER:   [][]byte{f.ctx.IntCertDer},
	})
	require.NoError(t, err)

	format, stmt := decodeStatement(t, attObjCBOR)
	require.Equal(t, attestation.FormatPacked, format)

	result, err := registry.Lookup(format).Verify(stmt, f.parsed, f.authData, f.clientDataHash)
	require.NoError(t, err)
	require.Equal(t, attestation.TypeBasic, result.Type)
	require.Len(t, result.TrustPath, 2)
}

func TestPackedX5CFormatRejectsAAGUIDMismatch(t *testing.T) {
	f := newFixture(t)
	registry := attestation.NewRegistry()

	attKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	// Certificate vouches for a different authenticator model.
	leafDER, err := mint.MintAttestationCert(&mint.AttestationCertInput{
		Context: f.ctx,
		Pubkey:  &attKey.PublicKey,
		AAGUID:  uuid.MustParse("00000000-0000-0000-0000-000000000001"),
	})
	require.NoError(t, err)

	attObjCBOR, err := mint.AttestPacked(&mint.PackedInput{
		AuthData:           f.authData,
		ClientDataHash:     f.clientDataHash,
		AttestationKey:     attKey,
		AttestationCertDER: leafDER,
	})
	require.NoError(t, err)

	_, stmt := decodeStatement(t, attObjCBOR)
	_, err = registry.Lookup("packed").Verify(stmt, f.parsed, f.authData, f.clientDataHash)
	require.Error(t, err)
}

func TestPackedSelfFormat(t *testing.T) {
	f := newFixture(t)
	registry := attestation.NewRegistry()

	attObjCBOR, err := mint.AttestPacked(&mint.PackedInput{
		AuthData:       f.authData,
		ClientDataHash: f.clientDataHash,
		CredentialKey:  f.credKey,
	})
	require.NoError(t, err)

	_, stmt := decodeStatement(t, attObjCBOR)

	result, err := registry.Lookup("packed").Verify(stmt, f.parsed, f.authData, f.clientDataHash)
	require.NoError(t, err)
	require.Equal(t, attestation.TypeSelf, result.Type)
	require.Empty(t, result.TrustPath)
}

func TestPackedSelfFormatRejectsForeignKey(t *testing.T) {
	f := newFixture(t)
	registry := attestation.NewRegistry()

	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	attObjCBOR, err := mint.AttestPacked(&mint.PackedInput{
		AuthData:       f.authData,
		ClientDataHash: f.clientDataHash,
		CredentialKey:  otherKey,
	})
	require.NoError(t, err)

	_, stmt := decodeStatement(t, attObjCBOR)
	_, err = registry.Lookup("packed").Verify(stmt, f.parsed, f.authData, f.clientDataHash)
	require.Error(t, err)
}

func TestPackedFormatRejectsECDAA(t *testing.T) {
	f := newFixture(t)
	registry := attestation.NewRegistry()

	stmt, err := cbor.Marshal(map[string]any{
		"alg":        -7,
		"sig":        []byte{1, 2, 3},
		"ecdaaKeyId": []byte{4, 5, 6},
	})
	require.NoError(t, err)

	_, err = registry.Lookup("packed").Verify(stmt, f.parsed, f.authData, f.clientDataHash)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ecdaa")
}
