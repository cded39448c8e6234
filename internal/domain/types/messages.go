package types

import "time"

// HandshakeMessage is exchanged while establishing a channel. Payload holds the
// encoded PublicKeyBundle of the sender.
type HandshakeMessage struct {
	State              HandshakeState
	ExchangeType       ExchangeType
	Payload            []byte
	InitialDHPublicKey X25519Public
}

// CipherEnvelope carries one encrypted message.
type CipherEnvelope struct {
	RequestID    uint32
	Nonce        [NonceSize]byte
	RatchetIndex uint32
	Cipher       []byte // ciphertext || 16-byte tag
	CreatedAt    time.Time

	// DHPublicKey is present only when a DH ratchet step accompanies the message.
	DHPublicKey *X25519Public
}
