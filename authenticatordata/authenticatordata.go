// Package authenticatordata implements the fixed binary layout of the
// WebAuthn authenticator data block.
// https://www.w3.org/TR/2018/CR-webauthn-20180320/#sec-authenticator-data
package authenticatordata

import (
	"github.com/google/uuid"
	cose_key "github.com/ldclabs/cose/key"
)

type Flags byte

const (
	FlagUserPresent            = Flags(1)
	FlagRFU1                   = Flags(1 << 1)
	FlagUserVerified           = Flags(1 << 2)
	FlagAttestedCredentialData = Flags(1 << 6)
	FlagExtensionData          = Flags(1 << 7)
)

func (f Flags) UserPresent() bool {
	return f&FlagUserPresent != 0
}

func (f Flags) UserVerified() bool {
	return f&FlagUserVerified != 0
}

func (f Flags) AttestedCredentialDataIncluded() bool {
	return f&FlagAttestedCredentialData != 0
}

func (f Flags) ExtensionDataIncluded() bool {
	return f&FlagExtensionData != 0
}

type T struct {
	RPIDHash  []byte
	Flags     Flags
	SignCount uint32

	// Present iff FlagAttestedCredentialData is set.
	AttestedCredentialData *AttestedCredentialData

	// Raw CBOR extension map, present iff FlagExtensionData is set.
	Extensions []byte
}

type AttestedCredentialData struct {
	AAGUID              uuid.UUID
	CredentialID        []byte
	CredentialPublicKey cose_key.Key

	// CredentialPublicKeyBytes holds the COSE_Key exactly as it appeared
	// on the wire, for storage alongside a registration.
	CredentialPublicKeyBytes []byte
}
