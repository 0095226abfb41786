package mint

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/keyfold/go-webauthn-rp/authenticatordata"
)

type AssertInput struct {
	PrivateKey     *ecdsa.PrivateKey
	RPID           string
	ClientDataJSON []byte
	SignCount      uint32
	Flags          authenticatordata.Flags
}

type AssertOutput struct {
	AuthenticatorData []byte
	Signature         []byte
}

// GenerateAssertion signs authenticatorData || SHA-256(clientDataJSON)
// with the credential key, the way an authenticator answers a get()
// ceremony. The UP flag is always set, whatever in.Flags says.
func GenerateAssertion(in *AssertInput) (AssertOutput, error) {
	rpIDHash := sha256.Sum256([]byte(in.RPID))

	authenticatorData := authenticatordata.T{
		RPIDHash:  rpIDHash[:],
		Flags:     in.Flags | authenticatordata.FlagUserPresent,
		SignCount: in.SignCount,
	}

	authenticatorDataB, err := authenticatordata.Marshal(&authenticatorData)
	if err != nil {
		return AssertOutput{}, err
	}

	clientDataHash := sha256.Sum256(in.ClientDataJSON)

	signedData := make([]byte, 0, len(authenticatorDataB)+len(clientDataHash))
	signedData = append(signedData, authenticatorDataB...)
	signedData = append(signedData, clientDataHash[:]...)
	digest := sha256.Sum256(signedData)

	sig, err := ecdsa.SignASN1(rand.Reader, in.PrivateKey, digest[:])
	if err != nil {
		return AssertOutput{}, err
	}

	return AssertOutput{
		AuthenticatorData: authenticatorDataB,
		Signature:         sig,
	}, nil
}

// ClientDataJSON renders the exact client data serialization a conforming
// client of the 2018-03-20 CR produces.
func ClientDataJSON(ceremonyType string, challengeB64 string, origin string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":%q,"challenge":%q,"origin":%q,"hashAlgorithm":"SHA-256"}`,
		ceremonyType, challengeB64, origin,
	))
}
