package types

import "crypto/subtle"

// Fixed sizes of key material on the wire.
const (
	KeySize       = 32
	SignatureSize = 64
	NonceSize     = 12
	TagSize       = 16
)

// X25519Public is a Curve25519 public key.
type X25519Public [KeySize]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is all zeros (absent).
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// Equal compares two public keys in constant time.
func (p X25519Public) Equal(o X25519Public) bool {
	return subtle.ConstantTimeCompare(p[:], o[:]) == 1
}

// X25519Private is a Curve25519 private key.
type X25519Private [KeySize]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [KeySize]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Ed25519Private is an Ed25519 signing private key (seed || public).
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

// Signature is a detached Ed25519 signature.
type Signature [SignatureSize]byte

// Slice returns the signature as a []byte.
func (s Signature) Slice() []byte { return s[:] }
