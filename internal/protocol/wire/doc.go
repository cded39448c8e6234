// Package wire encodes and decodes the byte-level forms of handshake messages,
// public key bundles, cipher envelopes and persisted ratchet state.
//
// Encoding is canonical CBOR. Every fixed-size field is length-checked on
// decode; violations fail with failure.ErrDecode.
package wire
