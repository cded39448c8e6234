package store

import (
	"crypto/rand"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"securechannel/internal/failure"
	"securechannel/internal/util/memzero"
)

const sealFormatVersion = 1

// ScryptParams are the cost parameters of the passphrase KDF.
type ScryptParams struct {
	N, R, P int
}

// DefaultScryptParams is the interactive-login cost recommended for scrypt.
var DefaultScryptParams = ScryptParams{N: 1 << 15, R: 8, P: 1}

// Upper bounds on the KDF cost accepted from a sealed file.
const (
	maxScryptN  = 1 << 20
	maxScryptRP = 1 << 6
)

// validate checks that p is usable and within the accepted cost.
func (p ScryptParams) validate(op string, kind error) error {
	if p.N < 2 || p.N&(p.N-1) != 0 || p.N > maxScryptN {
		return failure.New(kind, op, "scrypt N=%d must be a power of two in [2, %d]", p.N, maxScryptN)
	}
	if p.R < 1 || p.P < 1 || p.R > maxScryptRP || p.P > maxScryptRP || p.R*p.P > maxScryptRP {
		return failure.New(kind, op, "scrypt r=%d p=%d out of range (r*p <= %d)", p.R, p.P, maxScryptRP)
	}
	return nil
}

// sealedBlob is the on-disk form. The KDF parameters travel with the blob so
// that files written under older parameters stay readable.
type sealedBlob struct {
	V      int    `cbor:"1,keyasint"`
	Salt   []byte `cbor:"2,keyasint"`
	N      int    `cbor:"3,keyasint"`
	R      int    `cbor:"4,keyasint"`
	P      int    `cbor:"5,keyasint"`
	Cipher []byte `cbor:"6,keyasint"`
}

// seal encrypts raw under a key derived from passphrase and a fresh salt.
// label is bound as associated data alongside the salt.
func seal(passphrase string, label, raw []byte, params ScryptParams) ([]byte, error) {
	const op = "store.seal"
	if err := params.validate(op, failure.ErrInvalidInput); err != nil {
		return nil, err
	}
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, failure.Wrap(failure.ErrUnexpected, op, err)
	}
	key, err := scrypt.Key([]byte(passphrase), salt[:], params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, failure.Wrap(failure.ErrDeriveKey, op, err)
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, failure.Wrap(failure.ErrUnexpected, op, err)
	}
	// Zero nonce: every blob has its own salt and therefore its own key.
	var nonce [chacha20poly1305.NonceSize]byte
	ct := aead.Seal(nil, nonce[:], raw, append(salt[:], label...))

	out, err := cbor.Marshal(sealedBlob{
		V:      sealFormatVersion,
		Salt:   salt[:],
		N:      params.N,
		R:      params.R,
		P:      params.P,
		Cipher: ct,
	})
	if err != nil {
		return nil, failure.Wrap(failure.ErrUnexpected, op, err)
	}
	return out, nil
}

// open reverses seal. A wrong passphrase, a wrong label and a modified file
// all fail with failure.ErrDecrypt.
func open(passphrase string, label, b []byte) ([]byte, error) {
	const op = "store.open"
	var bl sealedBlob
	if err := cbor.Unmarshal(b, &bl); err != nil {
		return nil, failure.Wrap(failure.ErrDecode, op, err)
	}
	if bl.V != sealFormatVersion {
		return nil, failure.New(failure.ErrDecode, op, "unsupported format version %d", bl.V)
	}
	if len(bl.Salt) != 16 {
		return nil, failure.New(failure.ErrDecode, op, "salt is %d bytes", len(bl.Salt))
	}

	params := ScryptParams{N: bl.N, R: bl.R, P: bl.P}
	if err := params.validate(op, failure.ErrDecode); err != nil {
		return nil, err
	}

	key, err := scrypt.Key([]byte(passphrase), bl.Salt, params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, failure.Wrap(failure.ErrDecode, op, err)
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, failure.Wrap(failure.ErrUnexpected, op, err)
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], bl.Cipher, append(bl.Salt, label...))
	if err != nil {
		return nil, failure.New(failure.ErrDecrypt, op, "wrong passphrase or corrupted file")
	}
	return pt, nil
}
