package ratchet

import (
	"github.com/sirupsen/logrus"

	"securechannel/internal/crypto"
	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/util/memzero"
)

var infoDhRatchet = []byte("DhRatchet")

// performDHRatchet mixes a fresh DH output into the root key and re-keys one
// chain step. The sender side generates a new key pair against the peer's DH
// key; the receiver side combines the current sending private key with the
// peer's new public key. The root key is overwritten only after the chain step
// accepted its new keys. Callers hold s.mu.
func (s *Session) performDHRatchet(isSender bool, received *domain.X25519Public) error {
	const op = "ratchet.performDHRatchet"

	var (
		dhSecret []byte
		newPair  *DHKeys
		err      error
	)
	if isSender {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return err
		}
		defer memzero.Zero(priv[:])
		if dhSecret, err = crypto.DH(priv[:], s.peerDH[:]); err != nil {
			return err
		}
		newPair = &DHKeys{Private: priv[:], Public: pub[:]}
	} else {
		if received == nil || received.IsZero() {
			return failure.New(failure.ErrPeerPubKey, op, "missing peer dh public key")
		}
		priv, err := s.sending.readDHPrivate()
		if err != nil {
			return err
		}
		dhSecret, err = crypto.DH(priv, received[:])
		memzero.Zero(priv)
		if err != nil {
			return err
		}
	}
	defer memzero.Zero(dhSecret)

	root, err := s.rootKey.ReadBytes(domain.KeySize)
	if err != nil {
		return err
	}
	defer memzero.Zero(root)
	prk := crypto.HKDFExtract(root, dhSecret)
	defer memzero.Zero(prk)
	okm, err := crypto.HKDFExpand(prk, infoDhRatchet, 2*domain.KeySize)
	if err != nil {
		return err
	}
	defer memzero.Zero(okm)
	newRoot, newChain := okm[:domain.KeySize], okm[domain.KeySize:]

	target := s.receiving
	if isSender {
		target = s.sending
	}
	if err := target.UpdateKeysAfterDhRatchet(newChain, newPair); err != nil {
		return err
	}
	if err := s.rootKey.Write(newRoot); err != nil {
		return failure.Wrap(failure.ErrUnexpected, op, err)
	}

	if isSender {
		s.pendingDH = false
	} else {
		s.peerDH = *received
		s.pendingDH = true
		s.firstReceiving = false
	}

	sendPub, _ := s.sending.DHPublicKey()
	logrus.WithFields(logrus.Fields{
		"package": "ratchet",
		"op":      op,
		"session": s.id,
		"step":    target.Kind().String(),
		"local":   crypto.Fingerprint(sendPub[:]),
		"peer":    crypto.Fingerprint(s.peerDH[:]),
	}).Info("dh ratchet")
	return nil
}
