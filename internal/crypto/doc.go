// Package crypto exposes the primitives used by the secure channel.
//
// Contents
//
//   - X25519 key generation and Diffie–Hellman (GenerateX25519, DH, PublicFromPrivate)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - HKDF-SHA256 extract and expand (HKDFExtract, HKDFExpand)
//   - AES-256-GCM sealing (SealAESGCM, OpenAESGCM)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Private keys are returned as fixed-size arrays. Callers move them into
// securemem buffers and wipe the array with memzero as soon as possible.
package crypto
