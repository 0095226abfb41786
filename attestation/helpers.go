package attestation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"

	"github.com/pkg/errors"
)

func parseCertChain(x5c [][]byte) ([]*x509.Certificate, error) {
	if len(x5c) == 0 {
		return nil, errors.New("empty x5c certificate chain")
	}
	chain := make([]*x509.Certificate, len(x5c))
	for i, der := range x5c {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing certificate %d", i)
		}
		chain[i] = cert
	}
	return chain, nil
}

func verifyES256(pub *ecdsa.PublicKey, signedData, sig []byte) error {
	digest := sha256.Sum256(signedData)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return errors.New("ecdsa signature verification failed")
	}
	return nil
}

// ellipticPointToX962Uncompressed encodes a P-256 point in the X9.62
// uncompressed form 0x04 || X || Y.
func ellipticPointToX962Uncompressed(pub *ecdsa.PublicKey) []byte {
	x962Bytes := make([]byte, 65)
	x962Bytes[0] = 0x04
	xBytes := pub.X.Bytes()
	yBytes := pub.Y.Bytes()
	copy(x962Bytes[1+32-len(xBytes):33], xBytes)
	copy(x962Bytes[33+32-len(yBytes):], yBytes)
	return x962Bytes
}

func requireP256(pub *ecdsa.PublicKey) error {
	if pub.Curve != elliptic.P256() {
		return errors.Errorf("public key is on %s, need P-256", pub.Curve.Params().Name)
	}
	return nil
}
