package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"securechannel/internal/domain"
)

// Fingerprint returns a short hex fingerprint of a public key, the first
// 8 bytes of its SHA-256 digest. Used for logging only.
func Fingerprint(pub []byte) domain.Fingerprint {
	sum := sha256.Sum256(pub)
	return domain.Fingerprint(hex.EncodeToString(sum[:8]))
}
