// Package ratchet implements the symmetric and Diffie–Hellman ratchets of a
// finalized secure channel.
//
// A ChainStep is one direction of the symmetric ratchet. It derives per-message
// keys with HKDF, keeps a bounded cache of derived keys for out-of-order
// delivery and can be re-keyed by a DH ratchet.
//
// A Pending session holds the local DH keys before the handshake yields a root
// key. Finalize turns it into a Session, which owns both chain steps and the
// root key and performs a DH ratchet every RotationInterval sent messages or
// whenever the peer announced a new DH key.
//
// Concurrency: Session serializes all of its operations with one mutex.
// ChainStep and MessageKey values owned by a Session must not be shared.
package ratchet
