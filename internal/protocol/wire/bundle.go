package wire

import (
	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

type oneTimePreKey struct {
	ID  uint32 `cbor:"1,keyasint"`
	Pub []byte `cbor:"2,keyasint"`
}

type bundle struct {
	IdentityEd25519       []byte          `cbor:"1,keyasint"`
	IdentityX25519        []byte          `cbor:"2,keyasint"`
	SignedPreKeyID        uint32          `cbor:"3,keyasint"`
	SignedPreKey          []byte          `cbor:"4,keyasint"`
	SignedPreKeySignature []byte          `cbor:"5,keyasint"`
	OneTimePreKeys        []oneTimePreKey `cbor:"6,keyasint,omitempty"`
	EphemeralX25519       []byte          `cbor:"7,keyasint,omitempty"`
}

func toBundle(b domain.PublicKeyBundle) bundle {
	w := bundle{
		IdentityEd25519:       b.IdentityEd25519[:],
		IdentityX25519:        b.IdentityX25519.Slice(),
		SignedPreKeyID:        b.SignedPreKeyID,
		SignedPreKey:          b.SignedPreKey.Slice(),
		SignedPreKeySignature: b.SignedPreKeySignature.Slice(),
	}
	for _, r := range b.OneTimePreKeys {
		w.OneTimePreKeys = append(w.OneTimePreKeys, oneTimePreKey{ID: r.ID, Pub: r.Pub.Slice()})
	}
	if b.HasEphemeral() {
		w.EphemeralX25519 = b.EphemeralX25519.Slice()
	}
	return w
}

func fromBundle(op string, w bundle) (domain.PublicKeyBundle, error) {
	var (
		b   domain.PublicKeyBundle
		err error
	)
	if b.IdentityEd25519, err = fixed32(op, "identity ed25519", w.IdentityEd25519); err != nil {
		return b, err
	}
	if b.IdentityX25519, err = fixed32(op, "identity x25519", w.IdentityX25519); err != nil {
		return b, err
	}
	if b.SignedPreKey, err = fixed32(op, "signed prekey", w.SignedPreKey); err != nil {
		return b, err
	}
	if len(w.SignedPreKeySignature) != domain.SignatureSize {
		return b, failure.New(failure.ErrDecode, op, "signature is %d bytes, want %d", len(w.SignedPreKeySignature), domain.SignatureSize)
	}
	copy(b.SignedPreKeySignature[:], w.SignedPreKeySignature)
	b.SignedPreKeyID = w.SignedPreKeyID

	seen := make(map[uint32]struct{}, len(w.OneTimePreKeys))
	for _, r := range w.OneTimePreKeys {
		if _, dup := seen[r.ID]; dup {
			return b, failure.New(failure.ErrDecode, op, "duplicate one-time prekey id %d", r.ID)
		}
		seen[r.ID] = struct{}{}
		pub, err := fixed32(op, "one-time prekey", r.Pub)
		if err != nil {
			return b, err
		}
		b.OneTimePreKeys = append(b.OneTimePreKeys, domain.OneTimePreKeyRecord{ID: r.ID, Pub: pub})
	}
	if b.EphemeralX25519, err = optional32(op, "ephemeral x25519", w.EphemeralX25519); err != nil {
		return b, err
	}
	return b, nil
}

// EncodeBundle serializes a public key bundle.
func EncodeBundle(b domain.PublicKeyBundle) ([]byte, error) {
	return marshal("wire.EncodeBundle", toBundle(b))
}

// DecodeBundle parses and validates a public key bundle.
func DecodeBundle(data []byte) (domain.PublicKeyBundle, error) {
	const op = "wire.DecodeBundle"
	var w bundle
	if err := unmarshal(op, data, &w); err != nil {
		return domain.PublicKeyBundle{}, err
	}
	return fromBundle(op, w)
}
