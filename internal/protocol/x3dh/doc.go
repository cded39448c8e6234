// Package x3dh holds a party's long-term key material and performs the X3DH
// key agreement that yields a session root key.
//
// # Key material
//
// IdentityKeyMaterial owns an Ed25519 signing key, an X25519 identity key, one
// signed prekey, a pool of one-time prekeys and the ephemeral key of the
// current handshake attempt. Private halves live in securemem buffers.
//
// # Derivations
//
// Initiator (X3DHDeriveSharedSecret), against the responder's bundle:
//
//	DH1 = DH(EKa, IKb)  DH2 = DH(EKa, SPKb)  DH3 = DH(IKa, SPKb)  [DH4 = DH(EKa, OPKb)]
//
// Responder (CalculateSharedSecretAsRecipient):
//
//	DH1 = DH(IKb, EKa)  DH2 = DH(SPKb, EKa)  DH3 = DH(SPKb, IKa)  [DH4 = DH(OPKb, EKa)]
//
// Both sides compute
//
//	root = HKDF-Expand(HKDF-Extract(0x00*32, 0xFF*32 || DH1 || DH2 || DH3 [|| DH4]), info, 32)
//
// and therefore agree on the root key. The initiator uses the first one-time
// prekey of the responder's bundle; the responder advertises the prekey it
// consumed in that position.
package x3dh
