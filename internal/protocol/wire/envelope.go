package wire

import (
	"time"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

type envelope struct {
	RequestID    uint32 `cbor:"1,keyasint"`
	Nonce        []byte `cbor:"2,keyasint"`
	RatchetIndex uint32 `cbor:"3,keyasint"`
	Cipher       []byte `cbor:"4,keyasint"`
	CreatedAt    int64  `cbor:"5,keyasint"`
	DHPublicKey  []byte `cbor:"6,keyasint,omitempty"`
}

// EncodeEnvelope serializes a cipher envelope. CreatedAt is carried with
// nanosecond precision in UTC.
func EncodeEnvelope(e domain.CipherEnvelope) ([]byte, error) {
	w := envelope{
		RequestID:    e.RequestID,
		Nonce:        e.Nonce[:],
		RatchetIndex: e.RatchetIndex,
		Cipher:       e.Cipher,
		CreatedAt:    e.CreatedAt.UnixNano(),
	}
	if e.DHPublicKey != nil {
		w.DHPublicKey = e.DHPublicKey.Slice()
	}
	return marshal("wire.EncodeEnvelope", w)
}

// DecodeEnvelope parses and validates a cipher envelope.
func DecodeEnvelope(data []byte) (domain.CipherEnvelope, error) {
	const op = "wire.DecodeEnvelope"
	var w envelope
	if err := unmarshal(op, data, &w); err != nil {
		return domain.CipherEnvelope{}, err
	}
	e := domain.CipherEnvelope{
		RequestID:    w.RequestID,
		RatchetIndex: w.RatchetIndex,
		Cipher:       w.Cipher,
		CreatedAt:    time.Unix(0, w.CreatedAt).UTC(),
	}
	if w.RequestID == 0 {
		return e, failure.New(failure.ErrDecode, op, "request id is zero")
	}
	if len(w.Nonce) != domain.NonceSize {
		return e, failure.New(failure.ErrDecode, op, "nonce is %d bytes, want %d", len(w.Nonce), domain.NonceSize)
	}
	copy(e.Nonce[:], w.Nonce)
	if len(w.Cipher) < domain.TagSize {
		return e, failure.New(failure.ErrDecode, op, "cipher shorter than tag")
	}
	if len(w.DHPublicKey) != 0 {
		k, err := fixed32(op, "dh public key", w.DHPublicKey)
		if err != nil {
			return e, err
		}
		pub := domain.X25519Public(k)
		e.DHPublicKey = &pub
	}
	return e, nil
}
