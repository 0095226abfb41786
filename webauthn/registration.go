package webauthn

import (
	"bytes"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/iana"
	"github.com/pkg/errors"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"

	"github.com/keyfold/go-webauthn-rp/attestation"
	"github.com/keyfold/go-webauthn-rp/authenticatordata"
)

// registrationCeremony is the state threaded through the registration
// pipeline. Each step reads what earlier steps derived and stores its own
// results; a failing step short-circuits the chain.
type registrationCeremony struct {
	rp                 *RelyingParty
	request            *CreationOptions
	credential         *AttestationCredential
	callerTokenBinding mo.Option[string]

	clientData     *CollectedClientData
	clientDataHash []byte
	attObj         *AttestationObject
	authData       *authenticatordata.T
	statement      attestation.Result
	trusted        bool
	metadata       mo.Option[any]
	warnings       []string
}

type registrationStep struct {
	name string
	run  func(*registrationCeremony) error
}

// registrationSteps is the pipeline in specification order. Steps are
// addressable by name so tests can drive a single one.
func registrationSteps() []registrationStep {
	return []registrationStep{
		{"parse client data", (*registrationCeremony).parseClientData},
		{"verify type", (*registrationCeremony).verifyType},
		{"verify challenge", (*registrationCeremony).verifyChallenge},
		{"verify origin", (*registrationCeremony).verifyOrigin},
		{"verify token binding", (*registrationCeremony).verifyTokenBinding},
		{"compute client data hash", (*registrationCeremony).computeClientDataHash},
		{"decode attestation object", (*registrationCeremony).decodeAttestationObject},
		{"verify rp id hash", (*registrationCeremony).verifyRPIDHash},
		{"verify user presence", (*registrationCeremony).verifyUserPresence},
		{"verify attestation statement", (*registrationCeremony).verifyAttestationStatement},
		{"resolve trust", (*registrationCeremony).resolveTrust},
		{"check credential id uniqueness", (*registrationCeremony).checkCredentialIDUniqueness},
	}
}

// FinishRegistration runs the registration pipeline against a browser
// response. request must be the exact options previously issued by
// StartRegistration. The first failing step's error is returned verbatim.
func (rp *RelyingParty) FinishRegistration(request *CreationOptions, credential *AttestationCredential, callerTokenBinding mo.Option[string]) (*RegistrationResult, error) {
	if request == nil || credential == nil {
		return nil, errors.New("request and credential must not be nil")
	}

	c := &registrationCeremony{
		rp:                 rp,
		request:            request,
		credential:         credential,
		callerTokenBinding: callerTokenBinding,
	}

	for _, step := range registrationSteps() {
		if err := step.run(c); err != nil {
			failure := ceremonyFailure("registration", step.name, err)
			rp.log.WithFields(logrus.Fields{
				"step": step.name,
				"kind": KindOf(failure),
			}).Debug("registration rejected")
			return nil, failure
		}
	}

	result := c.result()
	rp.log.WithFields(logrus.Fields{
		"credentialId":       Base64URLEncode(result.KeyID.ID),
		"attestationType":    result.AttestationType.String(),
		"attestationTrusted": result.AttestationTrusted,
	}).Debug("registration verified")

	return result, nil
}

func (c *registrationCeremony) parseClientData() error {
	if len(c.credential.Response.ClientDataJSON) == 0 {
		return stepFailuref(KindMalformedInput, "clientDataJSON is missing")
	}
	clientData, err := parseClientData(c.credential.Response.ClientDataJSON)
	if err != nil {
		return stepFailure(KindMalformedInput, err)
	}
	c.clientData = clientData
	return nil
}

func (c *registrationCeremony) verifyType() error {
	return c.rp.checkType(c.clientData, clientDataTypeCreate)
}

func (c *registrationCeremony) verifyChallenge() error {
	return c.rp.checkChallenge(c.clientData, c.request.Challenge)
}

func (c *registrationCeremony) verifyOrigin() error {
	return c.rp.checkOrigin(c.clientData)
}

func (c *registrationCeremony) verifyTokenBinding() error {
	return c.rp.checkTokenBinding(c.callerTokenBinding, c.clientData)
}

func (c *registrationCeremony) computeClientDataHash() error {
	hash, err := c.rp.computeClientDataHash(c.clientData, c.credential.Response.ClientDataJSON)
	if err != nil {
		return err
	}
	c.clientDataHash = hash
	return nil
}

func (c *registrationCeremony) decodeAttestationObject() error {
	if len(c.credential.Response.AttestationObject) == 0 {
		return stepFailuref(KindMalformedInput, "attestationObject is missing")
	}

	attObj := AttestationObject{}
	if err := cbor.Unmarshal(c.credential.Response.AttestationObject, &attObj); err != nil {
		return stepFailure(KindMalformedInput, errors.Wrap(err, "decoding attestation object"))
	}

	authData := authenticatordata.T{}
	if err := authenticatordata.Unmarshal(attObj.AuthData, &authData); err != nil {
		return stepFailure(KindMalformedInput, err)
	}

	acd := authData.AttestedCredentialData
	if !authData.Flags.AttestedCredentialDataIncluded() || acd == nil {
		return stepFailuref(KindMalformedInput, "authenticator data carries no attested credential data")
	}

	if !bytes.Equal(c.credential.RawID, acd.CredentialID) {
		return stepFailuref(KindMalformedInput, "rawId does not match the attested credential id")
	}

	if err := c.checkCredentialAlgorithm(acd); err != nil {
		return err
	}

	c.attObj = &attObj
	c.authData = &authData
	return nil
}

// checkCredentialAlgorithm requires the credential key's algorithm to be
// one of the algorithms the creation options offered.
func (c *registrationCeremony) checkCredentialAlgorithm(acd *authenticatordata.AttestedCredentialData) error {
	alg := int(acd.CredentialPublicKey.Alg())
	if alg == 0 {
		alg = iana.AlgorithmES256
	}
	for _, param := range c.request.PubKeyCredParams {
		if param.Alg == alg {
			return nil
		}
	}
	return stepFailuref(KindUnsupportedAlgorithm, "credential algorithm %d is not among the requested parameters", alg)
}

func (c *registrationCeremony) verifyRPIDHash() error {
	want := c.rp.crypto.Hash([]byte(c.rp.identity.ID))
	if !bytes.Equal(c.authData.RPIDHash, want) {
		return stepFailuref(KindRPIDHashMismatch, "authenticator data rpIdHash does not match SHA-256 of %q", c.rp.identity.ID)
	}
	return nil
}

func (c *registrationCeremony) verifyUserPresence() error {
	if !c.authData.Flags.UserPresent() {
		return stepFailuref(KindUserPresenceMissing, "user present flag is not set")
	}
	if sel, ok := c.request.AuthenticatorSelection.Get(); ok {
		if sel.UserVerification == UserVerificationRequired && !c.authData.Flags.UserVerified() {
			return stepFailuref(KindUserVerificationRequired, "user verified flag is not set")
		}
	}
	return nil
}

func (c *registrationCeremony) verifyAttestationStatement() error {
	verifier := c.rp.formats.Lookup(c.attObj.Format)
	result, err := verifier.Verify(c.attObj.Statement, c.authData, c.attObj.AuthData, c.clientDataHash)
	if err != nil {
		return stepFailure(KindAttestationStatementInvalid, errors.Wrapf(err, "format %q", c.attObj.Format))
	}
	c.statement = result
	return nil
}

// resolveTrust consults the metadata service and applies the untrusted
// attestation policy: an attestation is trusted when its path chains to a
// known root, and self attestation also counts as trusted under
// allowUntrustedAttestation. Untrusted attestation fails the step unless
// allowUntrustedAttestation is set, in which case it passes untrusted.
func (c *registrationCeremony) resolveTrust() error {
	trusted := false
	if ms, ok := c.rp.metadata.Get(); ok {
		meta, err := ms.GetAttestation(c.authData.AttestedCredentialData.AAGUID, c.statement.TrustPath)
		if err != nil {
			return stepFailure(KindCollaborator, errors.Wrap(err, "metadata service"))
		}
		if meta.Trusted {
			trusted = true
			c.metadata = mo.Some(meta.Metadata)
		}
	}

	trusted = trusted || (c.statement.Type == attestation.TypeSelf && c.rp.allowUntrustedAttestation)

	if !trusted && !c.rp.allowUntrustedAttestation {
		return stepFailuref(KindAttestationUntrusted, "%s attestation could not be chained to a trusted root", c.statement.Type)
	}

	c.trusted = trusted
	return nil
}

func (c *registrationCeremony) checkCredentialIDUniqueness() error {
	existing, err := c.rp.credentials.LookupAll(c.authData.AttestedCredentialData.CredentialID)
	if err != nil {
		return stepFailure(KindCollaborator, errors.Wrap(err, "credential repository"))
	}
	if len(existing) != 0 {
		return stepFailuref(KindDuplicateCredentialID, "credential id is already registered")
	}
	return nil
}

func (c *registrationCeremony) result() *RegistrationResult {
	acd := c.authData.AttestedCredentialData
	return &RegistrationResult{
		KeyID: PublicKeyCredentialDescriptor{
			Type: PublicKeyType,
			ID:   acd.CredentialID,
		},
		AttestationTrusted:  c.trusted,
		AttestationType:     c.statement.Type,
		AttestationMetadata: c.metadata,
		PublicKeyCOSE:       acd.CredentialPublicKeyBytes,
		SignatureCount:      c.authData.SignCount,
		Warnings:            c.warnings,
	}
}
