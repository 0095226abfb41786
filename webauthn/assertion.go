package webauthn

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/iana"
	cose_key "github.com/ldclabs/cose/key"
	keyecdsa "github.com/ldclabs/cose/key/ecdsa"
	"github.com/pkg/errors"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"

	"github.com/keyfold/go-webauthn-rp/authenticatordata"
)

// UserHandleSource supplies the stored user handle on the username flow,
// where the authenticator response carries none.
type UserHandleSource func() mo.Option[[]byte]

// assertionCeremony is the state threaded through the assertion pipeline.
type assertionCeremony struct {
	rp                 *RelyingParty
	request            *RequestOptions
	credential         *AssertionCredential
	getUserHandle      UserHandleSource
	callerTokenBinding mo.Option[string]

	userHandle     []byte
	registered     RegisteredCredential
	clientData     *CollectedClientData
	clientDataHash []byte
	authData       *authenticatordata.T
	warnings       []string
}

type assertionStep struct {
	name string
	run  func(*assertionCeremony) error
}

func assertionSteps() []assertionStep {
	return []assertionStep{
		{"resolve credential", (*assertionCeremony).resolveCredential},
		{"check response fields", (*assertionCeremony).checkResponseFields},
		{"parse client data", (*assertionCeremony).parseClientData},
		{"verify type", (*assertionCeremony).verifyType},
		{"verify challenge", (*assertionCeremony).verifyChallenge},
		{"verify origin", (*assertionCeremony).verifyOrigin},
		{"verify token binding", (*assertionCeremony).verifyTokenBinding},
		{"verify extension subset", (*assertionCeremony).verifyExtensionSubset},
		{"verify rp id hash", (*assertionCeremony).verifyRPIDHash},
		{"compute client data hash", (*assertionCeremony).computeClientDataHash},
		{"verify signature", (*assertionCeremony).verifySignature},
		{"check signature counter", (*assertionCeremony).checkSignatureCounter},
	}
}

// FinishAssertion runs the assertion pipeline. request must be the exact
// options previously issued by StartAssertion. getUserHandle resolves the
// stored user handle on the username flow; it may be nil on the
// username-less flow, where the authenticator response carries the handle.
func (rp *RelyingParty) FinishAssertion(request *RequestOptions, credential *AssertionCredential, getUserHandle UserHandleSource, callerTokenBinding mo.Option[string]) (*AssertionResult, error) {
	if request == nil || credential == nil {
		return nil, errors.New("request and credential must not be nil")
	}

	c := &assertionCeremony{
		rp:                 rp,
		request:            request,
		credential:         credential,
		getUserHandle:      getUserHandle,
		callerTokenBinding: callerTokenBinding,
	}

	for _, step := range assertionSteps() {
		if err := step.run(c); err != nil {
			failure := ceremonyFailure("assertion", step.name, err)
			rp.log.WithFields(logrus.Fields{
				"step": step.name,
				"kind": KindOf(failure),
			}).Debug("assertion rejected")
			return nil, failure
		}
	}

	result := &AssertionResult{
		CredentialID:   c.registered.CredentialID,
		SignatureCount: c.authData.SignCount,
		Success:        true,
		Warnings:       c.warnings,
	}

	rp.log.WithFields(logrus.Fields{
		"credentialId":   Base64URLEncode(result.CredentialID),
		"signatureCount": result.SignatureCount,
	}).Debug("assertion verified")

	return result, nil
}

// resolveCredential finds the registered public key. The user handle comes
// from the authenticator response on the username-less flow, from the
// caller's UserHandleSource otherwise; both the credential id and the
// handle must match the stored registration.
func (c *assertionCeremony) resolveCredential() error {
	if len(c.request.AllowCredentials) != 0 {
		allowed := false
		for _, desc := range c.request.AllowCredentials {
			if bytes.Equal(desc.ID, c.credential.RawID) {
				allowed = true
				break
			}
		}
		if !allowed {
			return stepFailuref(KindUnknownCredential, "credential id is not among the allowed credentials")
		}
	}

	userHandle, present := c.credential.Response.UserHandle.Get()
	if !present && c.getUserHandle != nil {
		userHandle, present = c.getUserHandle().Get()
	}
	if !present {
		return stepFailuref(KindUnknownCredential, "no user handle in response and none supplied by the caller")
	}

	registered, err := c.rp.credentials.Lookup(c.credential.RawID, userHandle)
	if err != nil {
		return stepFailure(KindCollaborator, errors.Wrap(err, "credential repository"))
	}
	reg, ok := registered.Get()
	if !ok {
		return stepFailuref(KindUnknownCredential, "no registration for this credential id and user handle")
	}

	c.userHandle = userHandle
	c.registered = reg
	return nil
}

func (c *assertionCeremony) checkResponseFields() error {
	switch {
	case len(c.credential.Response.ClientDataJSON) == 0:
		return stepFailuref(KindMalformedInput, "clientDataJSON is missing")
	case len(c.credential.Response.AuthenticatorData) == 0:
		return stepFailuref(KindMalformedInput, "authenticatorData is missing")
	case len(c.credential.Response.Signature) == 0:
		return stepFailuref(KindMalformedInput, "signature is missing")
	}

	authData := authenticatordata.T{}
	if err := authenticatordata.Unmarshal(c.credential.Response.AuthenticatorData, &authData); err != nil {
		return stepFailure(KindMalformedInput, err)
	}
	c.authData = &authData
	return nil
}

func (c *assertionCeremony) parseClientData() error {
	clientData, err := parseClientData(c.credential.Response.ClientDataJSON)
	if err != nil {
		return stepFailure(KindMalformedInput, err)
	}
	c.clientData = clientData
	return nil
}

func (c *assertionCeremony) verifyType() error {
	return c.rp.checkType(c.clientData, clientDataTypeGet)
}

func (c *assertionCeremony) verifyChallenge() error {
	return c.rp.checkChallenge(c.clientData, c.request.Challenge)
}

func (c *assertionCeremony) verifyOrigin() error {
	return c.rp.checkOrigin(c.clientData)
}

func (c *assertionCeremony) verifyTokenBinding() error {
	return c.rp.checkTokenBinding(c.callerTokenBinding, c.clientData)
}

func (c *assertionCeremony) verifyExtensionSubset() error {
	if err := checkExtensionSubset(c.request.Extensions, c.clientData.ClientExtensions, "client"); err != nil {
		return err
	}
	return checkExtensionSubset(c.request.Extensions, c.clientData.AuthenticatorExtensions, "authenticator")
}

func (c *assertionCeremony) verifyRPIDHash() error {
	want := c.rp.crypto.Hash([]byte(c.request.RPID))
	if !bytes.Equal(c.authData.RPIDHash, want) {
		return stepFailuref(KindRPIDHashMismatch, "authenticator data rpIdHash does not match SHA-256 of %q", c.request.RPID)
	}
	return nil
}

func (c *assertionCeremony) computeClientDataHash() error {
	hash, err := c.rp.computeClientDataHash(c.clientData, c.credential.Response.ClientDataJSON)
	if err != nil {
		return err
	}
	c.clientDataHash = hash
	return nil
}

// verifySignature checks the assertion signature over
// authenticatorData || clientDataHash with the stored credential key. Any
// mutation of the client data, rpIdHash, flags or counter fails here
// because all of them are inputs to the signed byte stream.
func (c *assertionCeremony) verifySignature() error {
	ck := cose_key.Key{}
	if err := cbor.Unmarshal(c.registered.PublicKeyCOSE, &ck); err != nil {
		return stepFailure(KindMalformedInput, errors.Wrap(err, "decoding stored credential public key"))
	}

	pub, err := keyecdsa.KeyToPublic(ck)
	if err != nil {
		return stepFailure(KindUnsupportedAlgorithm, errors.Wrap(err, "stored credential public key"))
	}

	alg := int(ck.Alg())
	if alg == 0 {
		alg = iana.AlgorithmES256
	}

	signedData := make([]byte, 0, len(c.credential.Response.AuthenticatorData)+len(c.clientDataHash))
	signedData = append(signedData, c.credential.Response.AuthenticatorData...)
	signedData = append(signedData, c.clientDataHash...)

	if err := c.rp.crypto.VerifySignature(pub, alg, signedData, c.credential.Response.Signature); err != nil {
		return stepFailure(KindSignatureInvalid, err)
	}
	return nil
}

// checkSignatureCounter applies the clone-detection policy. A counter that
// advanced passes, as does any counter when the stored one is zero, or a
// reported counter of zero (an authenticator without a counter). Any other
// counter that did not advance either fails the ceremony
// (validateSignatureCounter) or records a warning.
func (c *assertionCeremony) checkSignatureCounter() error {
	got := c.authData.SignCount
	stored := c.registered.SignatureCount

	if got > stored || stored == 0 {
		return nil
	}
	if got == 0 {
		// Authenticator maintains no counter.
		return nil
	}

	if c.rp.validateSignatureCounter {
		return stepFailuref(KindCloneWarning, "signature counter regressed from %d to %d", stored, got)
	}
	c.warnings = append(c.warnings, fmt.Sprintf("signature counter regressed from %d to %d: possible cloned authenticator", stored, got))
	return nil
}
