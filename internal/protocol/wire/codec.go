package wire

import (
	"github.com/fxamacker/cbor/v2"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1 << 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func marshal(op string, v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, failure.Wrap(failure.ErrUnexpected, op, err)
	}
	return b, nil
}

func unmarshal(op string, data []byte, v any) error {
	if len(data) == 0 {
		return failure.New(failure.ErrDecode, op, "empty input")
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return failure.Wrap(failure.ErrDecode, op, err)
	}
	return nil
}

func fixed32(op, field string, b []byte) (out [domain.KeySize]byte, err error) {
	if len(b) != domain.KeySize {
		return out, failure.New(failure.ErrDecode, op, "%s is %d bytes, want %d", field, len(b), domain.KeySize)
	}
	copy(out[:], b)
	return out, nil
}

// optional32 accepts an empty field as the zero key.
func optional32(op, field string, b []byte) (out [domain.KeySize]byte, err error) {
	if len(b) == 0 {
		return out, nil
	}
	return fixed32(op, field, b)
}
