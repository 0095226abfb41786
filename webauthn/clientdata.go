package webauthn

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/samber/mo"
)

// CollectedClientData is the parsed form of the clientDataJSON the browser
// hands to the authenticator and back to us. Any byte of the serialized
// form is covered by the assertion signature through its hash.
// https://www.w3.org/TR/2018/CR-webauthn-20180320/#sec-client-data
type CollectedClientData struct {
	Type                    string                     `json:"type"`
	Challenge               string                     `json:"challenge"`
	Origin                  string                     `json:"origin"`
	HashAlgorithm           string                     `json:"hashAlgorithm"`
	TokenBindingID          mo.Option[string]          `json:"tokenBindingId"`
	ClientExtensions        map[string]json.RawMessage `json:"clientExtensions"`
	AuthenticatorExtensions map[string]json.RawMessage `json:"authenticatorExtensions"`
}

const (
	clientDataTypeCreate = "webauthn.create"
	clientDataTypeGet    = "webauthn.get"

	hashAlgorithmSHA256 = "SHA-256"
)

func parseClientData(clientDataJSON []byte) (*CollectedClientData, error) {
	c := CollectedClientData{}
	if err := json.Unmarshal(clientDataJSON, &c); err != nil {
		return nil, errors.Wrap(err, "parsing clientDataJSON")
	}
	return &c, nil
}

// Base64URLEncode encodes to the unpadded URL-safe alphabet used for all
// credential ids, user handles and challenges at the wire boundary.
func Base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Base64URLDecode decodes unpadded base64url.
func Base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
