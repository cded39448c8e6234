// Package store persists ratchet state to disk.
//
// RatchetFileStore implements domain.RatchetStateStore with one file per
// connect id. Each file is the CBOR-encoded state sealed with
// ChaCha20-Poly1305 under a key derived from the configured passphrase with
// scrypt. Writes go through a temp file and an atomic rename. All methods are
// safe for concurrent use.
package store
