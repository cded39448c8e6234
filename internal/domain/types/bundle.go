package types

// OneTimePreKeyRecord is the public half of a one-time prekey.
type OneTimePreKeyRecord struct {
	ID  uint32
	Pub X25519Public
}

// PublicKeyBundle is the public view of a party's identity key material.
type PublicKeyBundle struct {
	IdentityEd25519       Ed25519Public
	IdentityX25519        X25519Public
	SignedPreKeyID        uint32
	SignedPreKey          X25519Public
	SignedPreKeySignature Signature
	OneTimePreKeys        []OneTimePreKeyRecord

	// EphemeralX25519 is the zero key when the bundle carries no ephemeral.
	EphemeralX25519 X25519Public
}

// HasEphemeral reports whether the bundle carries an ephemeral key.
func (b PublicKeyBundle) HasEphemeral() bool { return !b.EphemeralX25519.IsZero() }

// FirstOneTimePreKey returns the first advertised one-time prekey, if any.
func (b PublicKeyBundle) FirstOneTimePreKey() (OneTimePreKeyRecord, bool) {
	if len(b.OneTimePreKeys) == 0 {
		return OneTimePreKeyRecord{}, false
	}
	return b.OneTimePreKeys[0], true
}
