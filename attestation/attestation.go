// Package attestation verifies WebAuthn attestation statements. Verifiers
// are looked up in a Registry keyed by the attestation format string; formats
// the registry does not know resolve to a fallback that reports the Unknown
// attestation type so the caller's trust policy can refuse them.
package attestation

import (
	"crypto/x509"

	"github.com/fxamacker/cbor/v2"

	"github.com/keyfold/go-webauthn-rp/authenticatordata"
)

// Type classifies the provenance claim an attestation statement makes.
// https://www.w3.org/TR/2018/CR-webauthn-20180320/#sctn-attestation-types
type Type int

const (
	TypeBasic Type = iota
	TypeSelf
	TypeAttCA
	TypeECDAA
	TypeNone
	TypeUnknown
)

func (t Type) String() string {
	switch t {
	case TypeBasic:
		return "basic"
	case TypeSelf:
		return "self"
	case TypeAttCA:
		return "attca"
	case TypeECDAA:
		return "ecdaa"
	case TypeNone:
		return "none"
	default:
		return "unknown"
	}
}

// Result is a successfully verified attestation statement. TrustPath is the
// certificate chain conveyed in the statement, leaf first; empty for self
// and none attestation.
type Result struct {
	Type      Type
	TrustPath []*x509.Certificate
}

// A Verifier validates one attestation statement format. attStmt is the raw
// CBOR statement map, authData the decoded authenticator data, rawAuthData
// the exact bytes it was decoded from.
type Verifier interface {
	Verify(attStmt cbor.RawMessage, authData *authenticatordata.T, rawAuthData, clientDataHash []byte) (Result, error)
}

type Registry struct {
	verifiers map[string]Verifier
	fallback  Verifier
}

// NewRegistry returns a registry with the built-in formats registered:
// "none", "fido-u2f" and "packed".
func NewRegistry() *Registry {
	r := &Registry{
		verifiers: map[string]Verifier{},
		fallback:  unknownFormat{},
	}
	r.Register(FormatNone, noneFormat{})
	r.Register(FormatFIDOU2F, fidoU2FFormat{})
	r.Register(FormatPacked, packedFormat{})
	return r
}

const (
	FormatNone    = "none"
	FormatFIDOU2F = "fido-u2f"
	FormatPacked  = "packed"
)

func (r *Registry) Register(format string, v Verifier) {
	r.verifiers[format] = v
}

// Lookup returns the verifier for format, or the unknown-format fallback.
func (r *Registry) Lookup(format string) Verifier {
	if v, ok := r.verifiers[format]; ok {
		return v
	}
	return r.fallback
}

// unknownFormat accepts any statement without inspecting it. The Unknown
// type keeps the trust step from ever marking the credential trusted.
type unknownFormat struct{}

func (unknownFormat) Verify(cbor.RawMessage, *authenticatordata.T, []byte, []byte) (Result, error) {
	return Result{Type: TypeUnknown}, nil
}
