package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

// GenerateEd25519 returns a new Ed25519 signing key pair.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, failure.Wrap(failure.ErrKeyGeneration, "crypto.GenerateEd25519", err)
	}
	copy(priv[:], sk)
	copy(pub[:], pk)
	clear(sk)
	return priv, pub, nil
}

// SignEd25519 signs msg with a 64-byte private key.
func SignEd25519(priv []byte, msg []byte) (sig domain.Signature, err error) {
	if len(priv) != ed25519.PrivateKeySize {
		return sig, failure.New(failure.ErrInvalidInput, "crypto.SignEd25519", "private key is %d bytes", len(priv))
	}
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(priv), msg))
	return sig, nil
}

// VerifyEd25519 verifies sig over msg with pub.
func VerifyEd25519(pub domain.Ed25519Public, msg []byte, sig domain.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:])
}
