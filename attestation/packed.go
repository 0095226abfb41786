package attestation

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/asn1"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/iana"
	keyecdsa "github.com/ldclabs/cose/key/ecdsa"
	"github.com/pkg/errors"

	"github.com/keyfold/go-webauthn-rp/authenticatordata"
)

// id-fido-gen-ce-aaguid, carried by packed attestation certificates that
// vouch for a specific authenticator model.
var oidFIDOGenCEAAGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

// packedFormat handles the "packed" attestation format. With an x5c chain
// the statement is a Basic attestation signed by the attestation
// certificate; without one the authenticator self-signed with the
// credential key. ECDAA is not supported.
// https://www.w3.org/TR/2018/CR-webauthn-20180320/#packed-attestation
type packedFormat struct{}

type packedStatement struct {
	Alg        int64    `cbor:"alg"`
	Sig        []byte   `cbor:"sig"`
	X5C        [][]byte `cbor:"x5c"`
	ECDAAKeyID []byte   `cbor:"ecdaaKeyId"`
}

func (packedFormat) Verify(attStmt cbor.RawMessage, authData *authenticatordata.T, rawAuthData, clientDataHash []byte) (Result, error) {
	stmt := packedStatement{}
	if err := cbor.Unmarshal(attStmt, &stmt); err != nil {
		return Result{}, errors.Wrap(err, "decoding attestation statement")
	}
	if len(stmt.Sig) == 0 {
		return Result{}, errors.New("attestation statement has no signature")
	}
	if stmt.ECDAAKeyID != nil {
		return Result{}, errors.New("ecdaa attestation is not supported")
	}
	if stmt.Alg != int64(iana.AlgorithmES256) {
		return Result{}, errors.Errorf("unsupported attestation algorithm %d", stmt.Alg)
	}

	acd := authData.AttestedCredentialData
	if acd == nil {
		return Result{}, errors.New("authenticator data carries no attested credential data")
	}

	signedData := make([]byte, 0, len(rawAuthData)+len(clientDataHash))
	signedData = append(signedData, rawAuthData...)
	signedData = append(signedData, clientDataHash...)

	if len(stmt.X5C) == 0 {
		return verifyPackedSelf(&stmt, acd, signedData)
	}
	return verifyPackedX5C(&stmt, acd, signedData)
}

func verifyPackedSelf(stmt *packedStatement, acd *authenticatordata.AttestedCredentialData, signedData []byte) (Result, error) {
	if alg := int64(acd.CredentialPublicKey.Alg()); alg != 0 && alg != stmt.Alg {
		return Result{}, errors.Errorf("statement algorithm %d does not match credential key algorithm %d", stmt.Alg, alg)
	}

	credPub, err := keyecdsa.KeyToPublic(acd.CredentialPublicKey)
	if err != nil {
		return Result{}, errors.Wrap(err, "decoding credential public key")
	}

	if err := verifyES256(credPub, signedData, stmt.Sig); err != nil {
		return Result{}, errors.Wrap(err, "verifying self attestation signature")
	}

	return Result{Type: TypeSelf}, nil
}

func verifyPackedX5C(stmt *packedStatement, acd *authenticatordata.AttestedCredentialData, signedData []byte) (Result, error) {
	chain, err := parseCertChain(stmt.X5C)
	if err != nil {
		return Result{}, err
	}
	leaf := chain[0]

	// Attestation certificate requirements of the packed format.
	if leaf.Version != 3 {
		return Result{}, errors.Errorf("attestation certificate is v%d, must be v3", leaf.Version)
	}
	if leaf.IsCA {
		return Result{}, errors.New("attestation certificate must not be a CA")
	}

	if err := verifyCertAAGUID(leaf, acd.AAGUID[:]); err != nil {
		return Result{}, err
	}

	attPub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return Result{}, errors.New("attestation certificate key is not an EC key")
	}

	if err := verifyES256(attPub, signedData, stmt.Sig); err != nil {
		return Result{}, errors.Wrap(err, "verifying attestation signature")
	}

	return Result{Type: TypeBasic, TrustPath: chain}, nil
}

// verifyCertAAGUID checks that the certificate's id-fido-gen-ce-aaguid
// extension, when present, names the same authenticator model as the
// attested credential data.
func verifyCertAAGUID(leaf *x509.Certificate, aaguid []byte) error {
	for _, ext := range leaf.Extensions {
		if !ext.Id.Equal(oidFIDOGenCEAAGUID) {
			continue
		}
		var certAAGUID []byte
		if _, err := asn1.Unmarshal(ext.Value, &certAAGUID); err != nil {
			return errors.Wrap(err, "decoding aaguid certificate extension")
		}
		if !bytes.Equal(certAAGUID, aaguid) {
			return errors.New("certificate aaguid does not match attested credential aaguid")
		}
		return nil
	}
	return nil
}
