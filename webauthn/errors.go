package webauthn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why a ceremony step rejected its input. Kinds are for
// server-side diagnostics; callers should answer the browser with a generic
// failure message rather than echo them.
type Kind string

const (
	KindMalformedInput               Kind = "malformed input"
	KindChallengeMismatch            Kind = "challenge mismatch"
	KindOriginMismatch               Kind = "origin mismatch"
	KindTokenBindingMismatch         Kind = "token binding mismatch"
	KindTypeMismatch                 Kind = "type mismatch"
	KindUnsupportedHashAlgorithm     Kind = "unsupported hash algorithm"
	KindRPIDHashMismatch             Kind = "rpIdHash mismatch"
	KindUserPresenceMissing          Kind = "user presence missing"
	KindUserVerificationRequired     Kind = "user verification required"
	KindUnknownCredential            Kind = "unknown credential"
	KindDuplicateCredentialID        Kind = "duplicate credential id"
	KindSignatureInvalid             Kind = "signature invalid"
	KindUnsupportedAlgorithm         Kind = "unsupported algorithm"
	KindAttestationFormatUnsupported Kind = "attestation format unsupported"
	KindAttestationStatementInvalid  Kind = "attestation statement invalid"
	KindAttestationUntrusted         Kind = "attestation untrusted"
	KindCloneWarning                 Kind = "cloned authenticator"
	KindExtensionNotRequested        Kind = "extension not requested"

	// KindCollaborator marks an injected collaborator (repository, metadata
	// service) failing inside a Finish pipeline; it fails the current
	// ceremony only.
	KindCollaborator Kind = "collaborator failure"
)

// VerificationError is the failure of a single named ceremony step. The
// driver returns the first failing step's error verbatim.
type VerificationError struct {
	Ceremony string
	Step     string
	Kind     Kind
	Err      error
}

func (e *VerificationError) Error() string {
	msg := fmt.Sprintf("%s step %q: %s", e.Ceremony, e.Step, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from a ceremony error, or "" if err is
// not a VerificationError.
func KindOf(err error) Kind {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return ""
}

// StepOf extracts the name of the step that rejected, or "" if err is not a
// VerificationError.
func StepOf(err error) string {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Step
	}
	return ""
}

func stepFailure(kind Kind, err error) *VerificationError {
	return &VerificationError{Kind: kind, Err: err}
}

func stepFailuref(kind Kind, format string, args ...any) *VerificationError {
	return &VerificationError{Kind: kind, Err: errors.Errorf(format, args...)}
}
