package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

// GenerateX25519 returns a fresh Curve25519 key pair.
// The private key is clamped per RFC 7748.
func GenerateX25519() (priv domain.X25519Private, pub domain.X25519Public, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, failure.Wrap(failure.ErrKeyGeneration, "crypto.GenerateX25519", err)
	}
	clamp(&priv)
	pb, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, failure.Wrap(failure.ErrKeyGeneration, "crypto.GenerateX25519", err)
	}
	copy(pub[:], pb)
	return priv, pub, nil
}

// PublicFromPrivate recomputes the public key for a 32-byte private scalar.
func PublicFromPrivate(priv []byte) (pub domain.X25519Public, err error) {
	if len(priv) != domain.KeySize {
		return pub, failure.New(failure.ErrInvalidInput, "crypto.PublicFromPrivate", "private key is %d bytes", len(priv))
	}
	pb, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return pub, failure.Wrap(failure.ErrDeriveKey, "crypto.PublicFromPrivate", err)
	}
	copy(pub[:], pb)
	return pub, nil
}

// DH computes X25519 Diffie–Hellman. The caller owns and must wipe the result.
func DH(priv []byte, pub []byte) ([]byte, error) {
	if len(priv) != domain.KeySize {
		return nil, failure.New(failure.ErrInvalidInput, "crypto.DH", "private key is %d bytes", len(priv))
	}
	if len(pub) != domain.KeySize {
		return nil, failure.New(failure.ErrPeerPubKey, "crypto.DH", "public key is %d bytes", len(pub))
	}
	secret, err := curve25519.X25519(priv, pub)
	if err != nil {
		// Low-order point: the output would be all zeros.
		return nil, failure.Wrap(failure.ErrPeerPubKey, "crypto.DH", err)
	}
	return secret, nil
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
