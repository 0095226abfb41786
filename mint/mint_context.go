// Package mint produces synthetic WebAuthn fixtures: attestation
// certificate chains, authenticator data blocks, attestation objects in
// every built-in format and assertion signatures. It exists so the verify
// paths can be exercised end to end without authenticator hardware.
package mint

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"
)

type MintContext struct {
	CAKey     *ecdsa.PrivateKey
	CACertDer []byte

	IntKey     *ecdsa.PrivateKey
	IntCertDer []byte
}

func NewMintContext() (*MintContext, error) {
	cader, capriv, err := generateCACert("WebAuthn Dev/Mock Attestation Root CA")
	if err != nil {
		return nil, err
	}

	intder, intpriv, err := generateIntermediateCert("WebAuthn Dev/Mock Attestation Intermediate", cader, capriv)
	if err != nil {
		return nil, err
	}

	return &MintContext{
		CAKey:     capriv,
		CACertDer: cader,

		IntKey:     intpriv,
		IntCertDer: intder,
	}, nil
}

func (mc *MintContext) CACert() (*x509.Certificate, error) {
	return x509.ParseCertificate(mc.CACertDer)
}

func (mc *MintContext) IntCert() (*x509.Certificate, error) {
	return x509.ParseCertificate(mc.IntCertDer)
}

func generateCACert(commonName string) ([]byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(50, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            2,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}

	return certDER, key, nil
}

func generateIntermediateCert(commonName string, parentCertDER []byte, parentKey *ecdsa.PrivateKey) ([]byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	parentCert, err := x509.ParseCertificate(parentCertDER)
	if err != nil {
		return nil, nil, err
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(49, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, parentCert, &key.PublicKey, parentKey)
	if err != nil {
		return nil, nil, err
	}
	return certDER, key, nil
}
