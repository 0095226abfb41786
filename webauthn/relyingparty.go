package webauthn

import (
	"github.com/ldclabs/cose/iana"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"

	"github.com/keyfold/go-webauthn-rp/attestation"
)

// RelyingParty drives the two WebAuthn ceremonies. It holds immutable
// configuration and injected collaborators only; a Finish call performs no
// background work and mutates nothing, so a single RelyingParty may be
// shared freely across goroutines.
type RelyingParty struct {
	identity RelyingPartyIdentity
	origins  []string

	allowedAlgorithms      []int
	authenticatorSelection mo.Option[AuthenticatorSelectionCriteria]
	attestationPreference  AttestationConveyancePreference

	allowMissingTokenBinding  bool
	allowUntrustedAttestation bool
	validateSignatureCounter  bool
	validateTypeAttribute     bool

	crypto      Crypto
	challenges  ChallengeGenerator
	credentials CredentialRepository
	metadata    mo.Option[MetadataService]
	formats     *attestation.Registry

	log logrus.FieldLogger
}

type optionsState struct {
	allowedAlgorithms      []int
	authenticatorSelection mo.Option[AuthenticatorSelectionCriteria]
	attestationPreference  AttestationConveyancePreference

	allowMissingTokenBinding  bool
	allowUntrustedAttestation bool
	validateSignatureCounter  bool
	validateTypeAttribute     bool

	crypto     Crypto
	challenges ChallengeGenerator
	metadata   mo.Option[MetadataService]
	formats    *attestation.Registry

	log logrus.FieldLogger
}

type Option struct {
	apply func(*optionsState)
}

func newOption(fn func(*optionsState)) Option {
	return Option{apply: fn}
}

// WithAllowedAlgorithms sets the COSE algorithm identifiers offered in
// creation options. Default: ES256 only.
func WithAllowedAlgorithms(algs ...int) Option {
	return newOption(func(s *optionsState) {
		s.allowedAlgorithms = algs
	})
}

// WithAuthenticatorSelection sets the selection criteria announced in
// creation options. A required user verification here makes registration
// step "verify user presence" demand the UV flag too.
func WithAuthenticatorSelection(sel AuthenticatorSelectionCriteria) Option {
	return newOption(func(s *optionsState) {
		s.authenticatorSelection = mo.Some(sel)
	})
}

// WithAttestationPreference sets the attestation conveyance preference sent
// to the browser. Default: direct.
func WithAttestationPreference(pref AttestationConveyancePreference) Option {
	return newOption(func(s *optionsState) {
		s.attestationPreference = pref
	})
}

// WithAllowMissingTokenBinding controls whether a ceremony passes when
// neither the caller nor the client supplied a token binding id. Default:
// true.
func WithAllowMissingTokenBinding(allow bool) Option {
	return newOption(func(s *optionsState) {
		s.allowMissingTokenBinding = allow
	})
}

// WithAllowUntrustedAttestation lets registrations succeed when the
// attestation cannot be chained to a trusted root; the result then carries
// AttestationTrusted=false, except for self attestation, which this option
// marks trusted. Default: false.
func WithAllowUntrustedAttestation(allow bool) Option {
	return newOption(func(s *optionsState) {
		s.allowUntrustedAttestation = allow
	})
}

// WithSignatureCounterValidation controls the clone-detection policy: when
// enabled a signature counter regression fails the assertion, otherwise it
// only records a warning. Default: enabled.
func WithSignatureCounterValidation(validate bool) Option {
	return newOption(func(s *optionsState) {
		s.validateSignatureCounter = validate
	})
}

// WithTypeAttributeValidation controls checking the client data type
// attribute ("webauthn.create"/"webauthn.get"). Default: enabled.
func WithTypeAttributeValidation(validate bool) Option {
	return newOption(func(s *optionsState) {
		s.validateTypeAttribute = validate
	})
}

// WithCrypto replaces the default standard-library crypto provider.
func WithCrypto(c Crypto) Option {
	return newOption(func(s *optionsState) {
		s.crypto = c
	})
}

// WithChallengeGenerator replaces the default random challenge source.
func WithChallengeGenerator(g ChallengeGenerator) Option {
	return newOption(func(s *optionsState) {
		s.challenges = g
	})
}

// WithMetadataService supplies the attestation metadata service. Without
// one no attestation chain is ever trusted: registrations only succeed under
// WithAllowUntrustedAttestation, and only self attestation is then reported
// as trusted.
func WithMetadataService(ms MetadataService) Option {
	return newOption(func(s *optionsState) {
		s.metadata = mo.Some(ms)
	})
}

// WithAttestationFormats replaces the built-in attestation format registry.
func WithAttestationFormats(r *attestation.Registry) Option {
	return newOption(func(s *optionsState) {
		s.formats = r
	})
}

// WithLogger sets the logger for ceremony tracing. Default: the logrus
// standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return newOption(func(s *optionsState) {
		s.log = log
	})
}

// New builds a RelyingParty. origins is the allow-list of exact origin
// strings accepted from client data; an empty list rejects every ceremony.
func New(identity RelyingPartyIdentity, origins []string, credentials CredentialRepository, options ...Option) (*RelyingParty, error) {
	if identity.ID == "" {
		return nil, errors.New("relying party id must not be empty")
	}
	if credentials == nil {
		return nil, errors.New("credential repository is required")
	}

	state := optionsState{
		allowedAlgorithms:        []int{iana.AlgorithmES256},
		attestationPreference:    AttestationDirect,
		allowMissingTokenBinding: true,
		validateSignatureCounter: true,
		validateTypeAttribute:    true,
		crypto:                   NewStandardCrypto(),
		challenges:               NewRandomChallengeGenerator(),
		formats:                  attestation.NewRegistry(),
		log:                      logrus.StandardLogger(),
	}
	for _, option := range options {
		option.apply(&state)
	}

	return &RelyingParty{
		identity:                  identity,
		origins:                   origins,
		allowedAlgorithms:         state.allowedAlgorithms,
		authenticatorSelection:    state.authenticatorSelection,
		attestationPreference:     state.attestationPreference,
		allowMissingTokenBinding:  state.allowMissingTokenBinding,
		allowUntrustedAttestation: state.allowUntrustedAttestation,
		validateSignatureCounter:  state.validateSignatureCounter,
		validateTypeAttribute:     state.validateTypeAttribute,
		crypto:                    state.crypto,
		challenges:                state.challenges,
		credentials:               credentials,
		metadata:                  state.metadata,
		formats:                   state.formats,
		log:                       state.log,
	}, nil
}

// StartRegistration builds the creation options for a new registration
// ceremony. The caller must store the returned options (the challenge in
// particular) until the matching FinishRegistration call.
func (rp *RelyingParty) StartRegistration(user UserIdentity, excludeCredentials []PublicKeyCredentialDescriptor, extensions mo.Option[AuthenticationExtensions]) (*CreationOptions, error) {
	if len(user.ID) == 0 || len(user.ID) > 64 {
		return nil, errors.Errorf("user handle must be 1..64 bytes, got %d", len(user.ID))
	}
	if user.Name == "" {
		return nil, errors.New("user name must not be empty")
	}

	challenge, err := rp.generateChallenge()
	if err != nil {
		return nil, err
	}

	rp.log.WithFields(logrus.Fields{
		"user":    user.Name,
		"exclude": len(excludeCredentials),
	}).Debug("starting registration ceremony")

	return &CreationOptions{
		RP:        rp.identity,
		User:      user,
		Challenge: challenge,
		PubKeyCredParams: lo.Map(rp.allowedAlgorithms, func(alg int, _ int) PublicKeyCredentialParameters {
			return PublicKeyCredentialParameters{Type: PublicKeyType, Alg: alg}
		}),
		ExcludeCredentials:     excludeCredentials,
		AuthenticatorSelection: rp.authenticatorSelection,
		Attestation:            rp.attestationPreference,
		Extensions:             extensions,
	}, nil
}

// StartAssertion builds the request options for an assertion ceremony. Pass
// the user's registered credential descriptors as allowCredentials for the
// username flow, or none for the username-less flow.
func (rp *RelyingParty) StartAssertion(allowCredentials []PublicKeyCredentialDescriptor, extensions mo.Option[AuthenticationExtensions]) (*RequestOptions, error) {
	challenge, err := rp.generateChallenge()
	if err != nil {
		return nil, err
	}

	rp.log.WithField("allow", len(allowCredentials)).Debug("starting assertion ceremony")

	return &RequestOptions{
		RPID:             rp.identity.ID,
		Challenge:        challenge,
		AllowCredentials: allowCredentials,
		Extensions:       extensions,
	}, nil
}

func (rp *RelyingParty) generateChallenge() ([]byte, error) {
	challenge, err := rp.challenges.GenerateChallenge()
	if err != nil {
		return nil, errors.Wrap(err, "generating challenge")
	}
	if len(challenge) < 16 {
		return nil, errors.Errorf("challenge generator returned %d bytes, need at least 16", len(challenge))
	}
	return challenge, nil
}
