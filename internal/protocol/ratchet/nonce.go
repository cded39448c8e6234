package ratchet

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

// nonceSource yields 12-byte AEAD nonces: 8 random bytes followed by a
// little-endian 32-bit counter.
type nonceSource struct {
	counter atomic.Uint32
}

func (n *nonceSource) next() ([domain.NonceSize]byte, error) {
	var nonce [domain.NonceSize]byte
	if _, err := rand.Read(nonce[:8]); err != nil {
		return nonce, failure.Wrap(failure.ErrUnexpected, "ratchet.GenerateNextNonce", err)
	}
	binary.LittleEndian.PutUint32(nonce[8:], n.counter.Add(1))
	return nonce, nil
}
