package webauthn_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyfold/go-webauthn-rp/mint"
	"github.com/keyfold/go-webauthn-rp/webauthn"
)

func TestStandardCryptoHash(t *testing.T) {
	c := webauthn.NewStandardCrypto()
	want := sha256.Sum256([]byte("localhost"))
	require.Equal(t, want[:], c.Hash([]byte("localhost")))
}

func TestStandardCryptoVerifySignature(t *testing.T) {
	c := webauthn.NewStandardCrypto()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	signedData := []byte("the signed byte stream")
	digest := sha256.Sum256(signedData)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)

	require.NoError(t, c.VerifySignature(&key.PublicKey, -7, signedData, sig))
	require.Error(t, c.VerifySignature(&key.PublicKey, -7, []byte("a different stream"), sig))
	require.Error(t, c.VerifySignature(&key.PublicKey, -257, signedData, sig))
}

func mintChain(t *testing.T) (chain []*x509.Certificate, ca *x509.Certificate) {
	t.Helper()

	ctx, err := mint.NewMintContext()
	require.NoError(t, err)

	attKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafDER, err := mint.MintAttestationCert(&mint.AttestationCertInput{
		Context: ctx,
		Pubkey:  &attKey.PublicKey,
		AAGUID:  testAAGUID,
	})
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)
	intermediate, err := ctx.IntCert()
	require.NoError(t, err)
	ca, err = ctx.CACert()
	require.NoError(t, err)

	return []*x509.Certificate{leaf, intermediate}, ca
}

func TestCheckCertPath(t *testing.T) {
	c := webauthn.NewStandardCrypto()
	chain, ca := mintChain(t)

	require.NoError(t, c.CheckCertPath(chain, []*x509.Certificate{ca}))

	_, otherCA := mintChain(t)
	require.Error(t, c.CheckCertPath(chain, []*x509.Certificate{otherCA}))
	require.Error(t, c.CheckCertPath(nil, []*x509.Certificate{ca}))
	require.Error(t, c.CheckCertPath(chain, nil))

	// Chain out of order: subject/issuer linking must fail.
	reversed := []*x509.Certificate{chain[1], chain[0]}
	require.Error(t, c.CheckCertPath(reversed, []*x509.Certificate{ca}))
}
