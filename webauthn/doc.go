// Package webauthn implements the server side of the WebAuthn credential
// ceremonies as specified by the W3C Candidate Recommendation of
// 2018-03-20: building creation and request options, verifying
// registration attestations and authentication assertions.
//
// A RelyingParty is immutable after construction and safe for concurrent
// use; persistence, challenge bookkeeping and transport are the caller's
// concern, reached only through the CredentialRepository,
// ChallengeGenerator and MetadataService interfaces.
package webauthn
