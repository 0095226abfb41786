package webauthn

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/samber/mo"

	"github.com/keyfold/go-webauthn-rp/attestation"
)

type PublicKeyCredentialType string

const PublicKeyType PublicKeyCredentialType = "public-key"

// RelyingPartyIdentity names the RP to the authenticator. ID must be a
// registrable domain suffix of the effective origin.
type RelyingPartyIdentity struct {
	ID   string
	Name string
	Icon string
}

// UserIdentity describes the account a registration is for. ID is the user
// handle, an opaque buffer of 1..64 bytes chosen by the RP.
type UserIdentity struct {
	ID          []byte
	Name        string
	DisplayName string
	Icon        string
}

type PublicKeyCredentialDescriptor struct {
	Type PublicKeyCredentialType
	ID   []byte
}

type PublicKeyCredentialParameters struct {
	Type PublicKeyCredentialType
	Alg  int
}

type UserVerificationRequirement string

const (
	UserVerificationRequired    UserVerificationRequirement = "required"
	UserVerificationPreferred   UserVerificationRequirement = "preferred"
	UserVerificationDiscouraged UserVerificationRequirement = "discouraged"
)

type AuthenticatorAttachment string

const (
	AttachmentPlatform      AuthenticatorAttachment = "platform"
	AttachmentCrossPlatform AuthenticatorAttachment = "cross-platform"
)

type AuthenticatorSelectionCriteria struct {
	AuthenticatorAttachment mo.Option[AuthenticatorAttachment]
	RequireResidentKey      bool
	UserVerification        UserVerificationRequirement
}

type AttestationConveyancePreference string

const (
	AttestationNone     AttestationConveyancePreference = "none"
	AttestationIndirect AttestationConveyancePreference = "indirect"
	AttestationDirect   AttestationConveyancePreference = "direct"
)

// AuthenticationExtensions carries extension inputs keyed by extension
// identifier.
type AuthenticationExtensions map[string]any

// CreationOptions is a PublicKeyCredentialCreationOptions: everything the
// browser needs to run a registration ceremony. The caller must remember
// the challenge until the matching response arrives.
type CreationOptions struct {
	RP                     RelyingPartyIdentity
	User                   UserIdentity
	Challenge              []byte
	PubKeyCredParams       []PublicKeyCredentialParameters
	ExcludeCredentials     []PublicKeyCredentialDescriptor
	AuthenticatorSelection mo.Option[AuthenticatorSelectionCriteria]
	Attestation            AttestationConveyancePreference
	Extensions             mo.Option[AuthenticationExtensions]
}

// RequestOptions is a PublicKeyCredentialRequestOptions for an assertion
// ceremony.
type RequestOptions struct {
	RPID             string
	Challenge        []byte
	AllowCredentials []PublicKeyCredentialDescriptor
	Extensions       mo.Option[AuthenticationExtensions]
}

// AttestationResponse is the authenticator's response to a registration
// ceremony.
type AttestationResponse struct {
	ClientDataJSON    []byte
	AttestationObject []byte
}

// AssertionResponse is the authenticator's response to an assertion
// ceremony.
type AssertionResponse struct {
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
	UserHandle        mo.Option[[]byte]
}

// AttestationCredential is the browser-returned PublicKeyCredential of a
// registration ceremony.
type AttestationCredential struct {
	ID                     string
	RawID                  []byte
	Response               AttestationResponse
	ClientExtensionResults AuthenticationExtensions
}

// AssertionCredential is the browser-returned PublicKeyCredential of an
// assertion ceremony.
type AssertionCredential struct {
	ID                     string
	RawID                  []byte
	Response               AssertionResponse
	ClientExtensionResults AuthenticationExtensions
}

// AttestationObject is the CBOR attestation object conveyed in an
// AttestationResponse.
type AttestationObject struct {
	AuthData  []byte          `cbor:"authData"`
	Format    string          `cbor:"fmt"`
	Statement cbor.RawMessage `cbor:"attStmt"`
}

// RegisteredCredential is a stored registration as the repository returns
// it.
type RegisteredCredential struct {
	CredentialID   []byte
	UserHandle     []byte
	PublicKeyCOSE  []byte
	SignatureCount uint32
}

// RegistrationResult is the outcome of a successful registration ceremony.
// The caller persists it (keyed by KeyID) together with the user handle.
type RegistrationResult struct {
	KeyID               PublicKeyCredentialDescriptor
	AttestationTrusted  bool
	AttestationType     attestation.Type
	AttestationMetadata mo.Option[any]
	PublicKeyCOSE       []byte
	SignatureCount      uint32
	Warnings            []string
}

// AssertionResult is the outcome of a successful assertion ceremony.
// SignatureCount is the authenticator's reported counter; persisting it is
// the caller's job.
type AssertionResult struct {
	CredentialID   []byte
	SignatureCount uint32
	Success        bool
	Warnings       []string
}
