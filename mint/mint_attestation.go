package mint

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/iana"
	keyecdsa "github.com/ldclabs/cose/key/ecdsa"
	"github.com/pkg/errors"

	"github.com/keyfold/go-webauthn-rp/authenticatordata"
)

// id-fido-gen-ce-aaguid, stamped into minted attestation certificates.
var aaguidOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

type attestationObject struct {
	AuthData  []byte          `cbor:"authData"`
	Format    string          `cbor:"fmt"`
	Statement cbor.RawMessage `cbor:"attStmt"`
}

type AuthDataInput struct {
	RPID      string
	Flags     authenticatordata.Flags
	SignCount uint32

	// When CredentialPublicKey is set, attested credential data is
	// included and the AT flag raised.
	AAGUID              uuid.UUID
	CredentialID        []byte
	CredentialPublicKey *ecdsa.PublicKey
}

// BuildAuthenticatorData serializes an authenticator data block for the
// given RP. The UP flag is always set, whatever in.Flags says.
func BuildAuthenticatorData(in *AuthDataInput) ([]byte, error) {
	rpIDHash := sha256.Sum256([]byte(in.RPID))

	ad := authenticatordata.T{
		RPIDHash:  rpIDHash[:],
		Flags:     in.Flags | authenticatordata.FlagUserPresent,
		SignCount: in.SignCount,
	}

	if in.CredentialPublicKey != nil {
		ck, err := keyecdsa.KeyFromPublic(in.CredentialPublicKey)
		if err != nil {
			return nil, errors.Wrap(err, "converting credential public key to COSE_Key")
		}
		if err := ck.Set(iana.KeyParameterAlg, iana.AlgorithmES256); err != nil {
			return nil, errors.Wrap(err, "setting COSE_Key alg")
		}
		ad.AttestedCredentialData = &authenticatordata.AttestedCredentialData{
			AAGUID:              in.AAGUID,
			CredentialID:        in.CredentialID,
			CredentialPublicKey: ck,
		}
	}

	return authenticatordata.Marshal(&ad)
}

// AttestNone wraps authenticator data in a "none" format attestation
// object.
func AttestNone(authData []byte) ([]byte, error) {
	stmt, err := cbor.Marshal(map[string]any{})
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(&attestationObject{
		AuthData:  authData,
		Format:    "none",
		Statement: stmt,
	})
}

type FIDOU2FInput struct {
	AuthData       []byte
	ClientDataHash []byte

	AttestationKey     *ecdsa.PrivateKey
	AttestationCertDER []byte
	IntermediatesDER   [][]byte
}

// AttestFIDOU2F builds a "fido-u2f" attestation object, signing the U2F
// registration signing base with the attestation key.
func AttestFIDOU2F(in *FIDOU2FInput) ([]byte, error) {
	ad := authenticatordata.T{}
	if err := authenticatordata.Unmarshal(in.AuthData, &ad); err != nil {
		return nil, errors.Wrap(err, "unmarshalling authenticator data")
	}
	if ad.AttestedCredentialData == nil {
		return nil, errors.New("authenticator data carries no attested credential data")
	}

	credPub, err := keyecdsa.KeyToPublic(ad.AttestedCredentialData.CredentialPublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "decoding credential public key")
	}

	signedData := make([]byte, 0, 1+32+32+len(ad.AttestedCredentialData.CredentialID)+65)
	signedData = append(signedData, 0x00)
	signedData = append(signedData, ad.RPIDHash...)
	signedData = append(signedData, in.ClientDataHash...)
	signedData = append(signedData, ad.AttestedCredentialData.CredentialID...)
	signedData = append(signedData, x962Uncompressed(credPub)...)

	digest := sha256.Sum256(signedData)
	sig, err := ecdsa.SignASN1(rand.Reader, in.AttestationKey, digest[:])
	if err != nil {
		return nil, err
	}

	stmt, err := cbor.Marshal(map[string]any{
		"x5c": certChain(in.AttestationCertDER, in.IntermediatesDER),
		"sig": sig,
	})
	if err != nil {
		return nil, err
	}

	return cbor.Marshal(&attestationObject{
		AuthData:  in.AuthData,
		Format:    "fido-u2f",
		Statement: stmt,
	})
}

type PackedInput struct {
	AuthData       []byte
	ClientDataHash []byte

	// X5C path: a full attestation chain.
	AttestationKey     *ecdsa.PrivateKey
	AttestationCertDER []byte
	IntermediatesDER   [][]byte

	// Self attestation path, used when AttestationKey is nil.
	CredentialKey *ecdsa.PrivateKey
}

// AttestPacked builds a "packed" attestation object, with an x5c chain
// when an attestation key is given and self attestation otherwise.
func AttestPacked(in *PackedInput) ([]byte, error) {
	signedData := make([]byte, 0, len(in.AuthData)+len(in.ClientDataHash))
	signedData = append(signedData, in.AuthData...)
	signedData = append(signedData, in.ClientDataHash...)
	digest := sha256.Sum256(signedData)

	stmtFields := map[string]any{
		"alg": iana.AlgorithmES256,
	}

	signer := in.AttestationKey
	if signer == nil {
		signer = in.CredentialKey
	} else {
		stmtFields["x5c"] = certChain(in.AttestationCertDER, in.IntermediatesDER)
	}
	if signer == nil {
		return nil, errors.New("either an attestation key or the credential key is required")
	}

	sig, err := ecdsa.SignASN1(rand.Reader, signer, digest[:])
	if err != nil {
		return nil, err
	}
	stmtFields["sig"] = sig

	stmt, err := cbor.Marshal(stmtFields)
	if err != nil {
		return nil, err
	}

	return cbor.Marshal(&attestationObject{
		AuthData:  in.AuthData,
		Format:    "packed",
		Statement: stmt,
	})
}

type AttestationCertInput struct {
	Context *MintContext
	Pubkey  *ecdsa.PublicKey
	AAGUID  uuid.UUID

	// MutateTemplate provides the caller with an opportunity to modify the
	// certificate template before it is signed.
	MutateTemplate func(*x509.Certificate)
}

// MintAttestationCert issues a leaf attestation certificate off the
// context's intermediate, carrying the id-fido-gen-ce-aaguid extension.
func MintAttestationCert(in *AttestationCertInput) ([]byte, error) {
	aaguidValue, err := asn1.Marshal(in.AAGUID[:])
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "WebAuthn Dev/Mock Authenticator Attestation"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtraExtensions: []pkix.Extension{
			{Id: aaguidOID, Value: aaguidValue},
		},
	}

	if in.MutateTemplate != nil {
		in.MutateTemplate(&template)
	}

	parent, err := in.Context.IntCert()
	if err != nil {
		return nil, err
	}

	return x509.CreateCertificate(rand.Reader, &template, parent, in.Pubkey, in.Context.IntKey)
}

func certChain(leafDER []byte, intermediatesDER [][]byte) [][]byte {
	x5c := make([][]byte, 1+len(intermediatesDER))
	x5c[0] = leafDER
	copy(x5c[1:], intermediatesDER)
	return x5c
}

// x962Uncompressed encodes a P-256 point as 0x04 || X || Y.
func x962Uncompressed(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, 65)
	out[0] = 0x04
	xBytes := pub.X.Bytes()
	yBytes := pub.Y.Bytes()
	copy(out[1+32-len(xBytes):33], xBytes)
	copy(out[33+32-len(yBytes):], yBytes)
	return out
}
