package webauthn

import (
	"bytes"
	"crypto/x509"

	"github.com/pkg/errors"
)

// CheckCertPath verifies an attestation trust path against the metadata
// roots for the authenticator model. chain is leaf first. It deliberately
// does not consult system roots or check hostnames; attestation
// certificates are not TLS certificates.
func (standardCrypto) CheckCertPath(chain, roots []*x509.Certificate) error {
	if len(chain) == 0 {
		return errors.New("trust path is empty")
	}
	if len(roots) == 0 {
		return errors.New("no trust roots for this authenticator model")
	}

	for i, cert := range chain {
		switch cert.SignatureAlgorithm {
		case x509.MD2WithRSA, x509.MD5WithRSA, x509.SHA1WithRSA, x509.ECDSAWithSHA1:
			return errors.Errorf("certificate %d uses weak signature algorithm %v", i, cert.SignatureAlgorithm)
		}
	}

	for i := len(chain) - 1; i >= 1; i-- {
		parent := chain[i]
		child := chain[i-1]

		if !bytes.Equal(parent.RawSubject, child.RawIssuer) {
			return errors.Errorf("certificate %d issuer does not match subject of certificate %d", i-1, i)
		}
		if err := child.CheckSignatureFrom(parent); err != nil {
			return errors.Wrapf(err, "certificate %d not signed by certificate %d", i-1, i)
		}
		if child.NotBefore.Before(parent.NotBefore) || child.NotAfter.After(parent.NotAfter) {
			return errors.Errorf("certificate %d validity period exceeds its issuer's", i-1)
		}
	}

	top := chain[len(chain)-1]
	for _, root := range roots {
		if !bytes.Equal(root.RawSubject, top.RawIssuer) {
			continue
		}
		if err := top.CheckSignatureFrom(root); err != nil {
			continue
		}
		return nil
	}

	return errors.New("trust path does not chain to any known root")
}
