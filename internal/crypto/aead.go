package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != domain.KeySize {
		return nil, failure.New(failure.ErrInvalidInput, "crypto.newGCM", "key is %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, failure.Wrap(failure.ErrUnexpected, "crypto.newGCM", err)
	}
	return cipher.NewGCM(block)
}

// SealAESGCM encrypts plaintext and returns ciphertext || 16-byte tag.
func SealAESGCM(key, nonce, plaintext, ad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, failure.New(failure.ErrInvalidInput, "crypto.SealAESGCM", "nonce is %d bytes", len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, ad), nil
}

// OpenAESGCM authenticates and decrypts ciphertext || tag.
func OpenAESGCM(key, nonce, ciphertext, ad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, failure.New(failure.ErrInvalidInput, "crypto.OpenAESGCM", "nonce is %d bytes", len(nonce))
	}
	if len(ciphertext) < aead.Overhead() {
		return nil, failure.New(failure.ErrDecrypt, "crypto.OpenAESGCM", "ciphertext shorter than tag")
	}
	pt, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, failure.Wrap(failure.ErrDecrypt, "crypto.OpenAESGCM", err)
	}
	return pt, nil
}
