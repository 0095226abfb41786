package authenticatordata

import (
	"encoding/binary"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Marshal serializes an authenticator data block. The AT and ED flag bits
// are derived from the populated fields, the remaining flag bits are taken
// from t.Flags as given.
func Marshal(t *T) ([]byte, error) {
	if len(t.RPIDHash) != 32 {
		return nil, errors.Errorf("rpIdHash must be 32 bytes, got %d", len(t.RPIDHash))
	}

	flags := t.Flags &^ (FlagAttestedCredentialData | FlagExtensionData)
	if t.AttestedCredentialData != nil {
		flags |= FlagAttestedCredentialData
	}
	if len(t.Extensions) != 0 {
		flags |= FlagExtensionData
	}

	out := make([]byte, 0, baseLength)
	out = append(out, t.RPIDHash...)
	out = append(out, byte(flags))
	out = binary.BigEndian.AppendUint32(out, t.SignCount)

	if acd := t.AttestedCredentialData; acd != nil {
		if len(acd.CredentialID) > math.MaxUint16 {
			return nil, errors.Errorf("credential id too long: %d bytes", len(acd.CredentialID))
		}

		out = append(out, acd.AAGUID[:]...)
		out = binary.BigEndian.AppendUint16(out, uint16(len(acd.CredentialID)))
		out = append(out, acd.CredentialID...)

		keyBytes := acd.CredentialPublicKeyBytes
		if keyBytes == nil {
			var err error
			keyBytes, err = cbor.Marshal(acd.CredentialPublicKey)
			if err != nil {
				return nil, errors.Wrap(err, "encoding credential public key")
			}
		}
		out = append(out, keyBytes...)
	}

	out = append(out, t.Extensions...)

	return out, nil
}
