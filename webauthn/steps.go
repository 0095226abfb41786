package webauthn

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/samber/mo"
)

// Checks shared verbatim between the registration and assertion pipelines.

func (rp *RelyingParty) checkType(clientData *CollectedClientData, want string) error {
	if !rp.validateTypeAttribute {
		return nil
	}
	if clientData.Type != want {
		return stepFailuref(KindTypeMismatch, "expected type %q, got %q", want, clientData.Type)
	}
	return nil
}

func (rp *RelyingParty) checkChallenge(clientData *CollectedClientData, expected []byte) error {
	got, err := Base64URLDecode(clientData.Challenge)
	if err != nil {
		return stepFailure(KindMalformedInput, errors.Wrap(err, "decoding client data challenge"))
	}
	if !constantTimeEqual(got, expected) {
		return stepFailuref(KindChallengeMismatch, "client data challenge does not match issued challenge")
	}
	return nil
}

func (rp *RelyingParty) checkOrigin(clientData *CollectedClientData) error {
	for _, origin := range rp.origins {
		if clientData.Origin == origin {
			return nil
		}
	}
	return stepFailuref(KindOriginMismatch, "origin %q is not in the allow-list", clientData.Origin)
}

// checkTokenBinding enforces the token binding policy: when either side
// supplies a binding id both must supply it and the values must match.
// Absence on both sides passes only under allowMissingTokenBinding.
func (rp *RelyingParty) checkTokenBinding(caller mo.Option[string], clientData *CollectedClientData) error {
	callerID, callerPresent := caller.Get()
	clientID, clientPresent := clientData.TokenBindingID.Get()

	switch {
	case callerPresent && !clientPresent:
		return stepFailuref(KindTokenBindingMismatch, "token binding id expected but client data carries none")
	case !callerPresent && clientPresent:
		return stepFailuref(KindTokenBindingMismatch, "client data carries a token binding id but none was expected")
	case callerPresent && clientPresent:
		if !constantTimeEqual([]byte(callerID), []byte(clientID)) {
			return stepFailuref(KindTokenBindingMismatch, "token binding id does not match")
		}
		return nil
	default:
		if !rp.allowMissingTokenBinding {
			return stepFailuref(KindTokenBindingMismatch, "token binding id is required")
		}
		return nil
	}
}

// computeClientDataHash hashes the raw clientDataJSON after checking the
// declared hash algorithm. Only SHA-256 is acceptable; MD5 and SHA-1 are
// rejected along with everything else.
func (rp *RelyingParty) computeClientDataHash(clientData *CollectedClientData, clientDataJSON []byte) ([]byte, error) {
	if clientData.HashAlgorithm != hashAlgorithmSHA256 {
		return nil, stepFailuref(KindUnsupportedHashAlgorithm, "hash algorithm %q is not SHA-256", clientData.HashAlgorithm)
	}
	return rp.crypto.Hash(clientDataJSON), nil
}

// checkExtensionSubset rejects any extension key the request never asked
// for.
func checkExtensionSubset(requested mo.Option[AuthenticationExtensions], got map[string]json.RawMessage, field string) error {
	if len(got) == 0 {
		return nil
	}
	req, present := requested.Get()
	for k := range got {
		if !present {
			return stepFailuref(KindExtensionNotRequested, "%s extension %q was not requested", field, k)
		}
		if _, ok := req[k]; !ok {
			return stepFailuref(KindExtensionNotRequested, "%s extension %q was not requested", field, k)
		}
	}
	return nil
}

func ceremonyFailure(ceremony, step string, err error) error {
	var verr *VerificationError
	if errors.As(err, &verr) {
		verr.Ceremony = ceremony
		verr.Step = step
		return verr
	}
	return &VerificationError{Ceremony: ceremony, Step: step, Kind: KindCollaborator, Err: err}
}
