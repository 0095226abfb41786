package authenticatordata

import (
	"bytes"
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const baseLength = 32 + 1 + 4

// Unmarshal unmarshals an authenticator data block. The attested credential
// data section is decoded when the AT flag is set, the extension map is
// captured raw when the ED flag is set. Truncated input returns an error,
// never panics.
func Unmarshal(src []byte, dst *T) error {
	rest, err := unmarshalBase(src, dst)
	if err != nil {
		return err
	}

	if dst.Flags.AttestedCredentialDataIncluded() {
		acd := AttestedCredentialData{}
		rest, err = UnmarshalAttestedCredentialData(rest, &acd)
		if err != nil {
			return err
		}
		dst.AttestedCredentialData = &acd
	}

	if dst.Flags.ExtensionDataIncluded() {
		if len(rest) == 0 {
			return errors.New("extension data flag set but no extension bytes present")
		}
		dst.Extensions = rest
		rest = nil
	}

	if len(rest) != 0 {
		return errors.Errorf("%d trailing bytes after authenticator data", len(rest))
	}

	return nil
}

func unmarshalBase(src []byte, dst *T) (rest []byte, err error) {
	if len(src) < baseLength {
		return nil, errors.Errorf("authenticator data truncated: %d bytes, need at least %d", len(src), baseLength)
	}

	cursor := src

	dst.RPIDHash = cursor[0:32]
	cursor = cursor[32:]

	dst.Flags = Flags(cursor[0])
	cursor = cursor[1:]

	dst.SignCount = binary.BigEndian.Uint32(cursor)
	cursor = cursor[4:]

	return cursor, nil
}

func UnmarshalAttestedCredentialData(src []byte, dst *AttestedCredentialData) (rest []byte, err error) {
	if len(src) < 18 {
		return nil, errors.New("attested credential data truncated")
	}

	dst.AAGUID = uuid.UUID(src[0:16])

	credLen := int(binary.BigEndian.Uint16(src[16:18]))
	if len(src) < 18+credLen {
		return nil, errors.Errorf("credential id truncated: need %d bytes, have %d", credLen, len(src)-18)
	}
	dst.CredentialID = src[18 : 18+credLen]

	keyBytes := src[18+credLen:]
	dec := cbor.NewDecoder(bytes.NewReader(keyBytes))
	if err := dec.Decode(&dst.CredentialPublicKey); err != nil {
		return nil, errors.Wrap(err, "decoding credential public key")
	}
	dst.CredentialPublicKeyBytes = keyBytes[:dec.NumBytesRead()]

	return src[18+credLen+dec.NumBytesRead():], nil
}
