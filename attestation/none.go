package attestation

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/keyfold/go-webauthn-rp/authenticatordata"
)

// noneFormat handles the "none" attestation format: the statement must be
// an empty map.
// https://www.w3.org/TR/2018/CR-webauthn-20180320/#none-attestation
type noneFormat struct{}

func (noneFormat) Verify(attStmt cbor.RawMessage, _ *authenticatordata.T, _, _ []byte) (Result, error) {
	stmt := map[string]cbor.RawMessage{}
	if err := cbor.Unmarshal(attStmt, &stmt); err != nil {
		return Result{}, errors.Wrap(err, "decoding attestation statement")
	}
	if len(stmt) != 0 {
		return Result{}, errors.Errorf("none attestation statement must be empty, has %d entries", len(stmt))
	}

	return Result{Type: TypeNone}, nil
}
