package attestation

import (
	"crypto/ecdsa"

	"github.com/fxamacker/cbor/v2"
	keyecdsa "github.com/ldclabs/cose/key/ecdsa"
	"github.com/pkg/errors"

	"github.com/keyfold/go-webauthn-rp/authenticatordata"
)

// fidoU2FFormat handles the "fido-u2f" attestation format produced by U2F
// authenticators. The statement carries an attestation certificate chain and
// a signature over the U2F registration signing base.
// https://www.w3.org/TR/2018/CR-webauthn-20180320/#fido-u2f-attestation
type fidoU2FFormat struct{}

type fidoU2FStatement struct {
	X5C [][]byte `cbor:"x5c"`
	Sig []byte   `cbor:"sig"`
}

func (fidoU2FFormat) Verify(attStmt cbor.RawMessage, authData *authenticatordata.T, _, clientDataHash []byte) (Result, error) {
	stmt := fidoU2FStatement{}
	if err := cbor.Unmarshal(attStmt, &stmt); err != nil {
		return Result{}, errors.Wrap(err, "decoding attestation statement")
	}
	if len(stmt.Sig) == 0 {
		return Result{}, errors.New("attestation statement has no signature")
	}

	chain, err := parseCertChain(stmt.X5C)
	if err != nil {
		return Result{}, err
	}

	attPub, ok := chain[0].PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return Result{}, errors.New("attestation certificate key is not an EC key")
	}
	if err := requireP256(attPub); err != nil {
		return Result{}, errors.Wrap(err, "attestation certificate key")
	}

	acd := authData.AttestedCredentialData
	if acd == nil {
		return Result{}, errors.New("authenticator data carries no attested credential data")
	}

	credPub, err := keyecdsa.KeyToPublic(acd.CredentialPublicKey)
	if err != nil {
		return Result{}, errors.Wrap(err, "decoding credential public key")
	}
	if err := requireP256(credPub); err != nil {
		return Result{}, errors.Wrap(err, "credential public key")
	}

	// U2F registration signing base, per FIDO U2F raw message formats §4.3.
	signedData := make([]byte, 0, 1+32+32+len(acd.CredentialID)+65)
	signedData = append(signedData, 0x00)
	signedData = append(signedData, authData.RPIDHash...)
	signedData = append(signedData, clientDataHash...)
	signedData = append(signedData, acd.CredentialID...)
	signedData = append(signedData, ellipticPointToX962Uncompressed(credPub)...)

	if err := verifyES256(attPub, signedData, stmt.Sig); err != nil {
		return Result{}, errors.Wrap(err, "verifying registration signature")
	}

	return Result{Type: TypeBasic, TrustPath: chain}, nil
}
