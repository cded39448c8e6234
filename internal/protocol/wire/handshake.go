package wire

import (
	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

type handshakeMessage struct {
	State              uint8  `cbor:"1,keyasint"`
	ExchangeType       uint8  `cbor:"2,keyasint"`
	Payload            []byte `cbor:"3,keyasint"`
	InitialDHPublicKey []byte `cbor:"4,keyasint"`
}

// EncodeHandshake serializes a handshake message.
func EncodeHandshake(m domain.HandshakeMessage) ([]byte, error) {
	return marshal("wire.EncodeHandshake", handshakeMessage{
		State:              uint8(m.State),
		ExchangeType:       uint8(m.ExchangeType),
		Payload:            m.Payload,
		InitialDHPublicKey: m.InitialDHPublicKey.Slice(),
	})
}

// DecodeHandshake parses a handshake message. The embedded bundle is checked
// for well-formedness but left encoded in Payload.
func DecodeHandshake(data []byte) (domain.HandshakeMessage, error) {
	const op = "wire.DecodeHandshake"
	var w handshakeMessage
	if err := unmarshal(op, data, &w); err != nil {
		return domain.HandshakeMessage{}, err
	}
	m := domain.HandshakeMessage{
		State:        domain.HandshakeState(w.State),
		ExchangeType: domain.ExchangeType(w.ExchangeType),
		Payload:      w.Payload,
	}
	if !m.State.Valid() {
		return m, failure.New(failure.ErrDecode, op, "unknown handshake state %d", w.State)
	}
	if !m.ExchangeType.Valid() {
		return m, failure.New(failure.ErrDecode, op, "unknown exchange type %d", w.ExchangeType)
	}
	var err error
	if m.InitialDHPublicKey, err = fixed32(op, "initial dh public key", w.InitialDHPublicKey); err != nil {
		return m, err
	}
	if _, err = DecodeBundle(w.Payload); err != nil {
		return m, err
	}
	return m, nil
}
