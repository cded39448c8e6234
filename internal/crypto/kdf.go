package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"securechannel/internal/failure"
)

// HKDFExtract returns PRK = HMAC-SHA256(salt, ikm). A nil salt is treated as
// 32 zero bytes, as RFC 5869 prescribes.
func HKDFExtract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

// HKDFExpand expands prk with info into n output bytes.
func HKDFExpand(prk, info []byte, n int) ([]byte, error) {
	if len(prk) == 0 {
		return nil, failure.New(failure.ErrDeriveKey, "crypto.HKDFExpand", "empty pseudo-random key")
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, failure.Wrap(failure.ErrDeriveKey, "crypto.HKDFExpand", err)
	}
	return out, nil
}
