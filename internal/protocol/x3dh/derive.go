package x3dh

import (
	"bytes"

	"github.com/sirupsen/logrus"

	"securechannel/internal/crypto"
	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/securemem"
	"securechannel/internal/util/memzero"
)

// RootKeyInfo is the HKDF info of the X3DH root key.
var RootKeyInfo = []byte("securechannel-x3dh-root")

var (
	ikmPrefix = bytes.Repeat([]byte{0xFF}, domain.KeySize)
	zeroSalt  = make([]byte, domain.KeySize)
)

// dhWith runs DH between the private key in buf and pub.
func dhWith(buf *securemem.Buffer, pub []byte) ([]byte, error) {
	var out []byte
	err := buf.Use(func(priv []byte) error {
		var err error
		out, err = crypto.DH(priv, pub)
		return err
	})
	return out, err
}

// deriveRootKey computes the root key from the DH outputs and wipes them.
func deriveRootKey(op string, info []byte, dhs ...[]byte) (*securemem.Buffer, error) {
	ikm := make([]byte, 0, domain.KeySize*(len(dhs)+1))
	ikm = append(ikm, ikmPrefix...)
	for _, d := range dhs {
		ikm = append(ikm, d...)
	}
	memzero.Zero(dhs...)
	defer memzero.Zero(ikm)

	prk := crypto.HKDFExtract(zeroSalt, ikm)
	defer memzero.Zero(prk)
	root, err := crypto.HKDFExpand(prk, info, domain.KeySize)
	if err != nil {
		return nil, failure.Wrap(failure.ErrDeriveKey, op, err)
	}
	defer memzero.Zero(root)
	return securemem.FromBytes(root)
}

// X3DHDeriveSharedSecret derives the root key on the initiator side from the
// responder's bundle, using the handshake's ephemeral key eph. The first
// one-time prekey of the bundle, when present, contributes DH4.
func (m *IdentityKeyMaterial) X3DHDeriveSharedSecret(eph *EphemeralKey, remote domain.PublicKeyBundle, info []byte) (*securemem.Buffer, error) {
	const op = "x3dh.X3DHDeriveSharedSecret"
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLive(op); err != nil {
		return nil, err
	}
	if err := eph.check(op); err != nil {
		return nil, err
	}
	if remote.IdentityX25519.IsZero() || remote.SignedPreKey.IsZero() {
		return nil, failure.New(failure.ErrPeerPubKey, op, "remote bundle lacks identity or signed prekey")
	}

	var dhs [][]byte
	fail := func(err error) (*securemem.Buffer, error) {
		memzero.Zero(dhs...)
		return nil, failure.Wrap(failure.ErrDeriveKey, op, err)
	}

	dh1, err := dhWith(eph.pair.priv, remote.IdentityX25519[:])
	if err != nil {
		return fail(err)
	}
	dhs = append(dhs, dh1)
	dh2, err := dhWith(eph.pair.priv, remote.SignedPreKey[:])
	if err != nil {
		return fail(err)
	}
	dhs = append(dhs, dh2)
	dh3, err := dhWith(m.identity.priv, remote.SignedPreKey[:])
	if err != nil {
		return fail(err)
	}
	dhs = append(dhs, dh3)
	if opk, ok := remote.FirstOneTimePreKey(); ok {
		dh4, err := dhWith(eph.pair.priv, opk.Pub[:])
		if err != nil {
			return fail(err)
		}
		dhs = append(dhs, dh4)
	}

	logrus.WithFields(logrus.Fields{
		"package": "x3dh",
		"op":      op,
		"peer":    crypto.Fingerprint(remote.IdentityX25519[:]),
		"dh":      len(dhs),
	}).Debug("deriving initiator root key")
	return deriveRootKey(op, info, dhs...)
}

// CalculateSharedSecretAsRecipient derives the root key on the responder side
// from the initiator's identity and ephemeral keys. usedOneTimePreKeyID names
// the local one-time prekey the initiator combined with, or nil for none. The
// prekey is not consumed here; see ConsumeOneTimePreKey.
func (m *IdentityKeyMaterial) CalculateSharedSecretAsRecipient(remoteIdentity, remoteEphemeral domain.X25519Public, usedOneTimePreKeyID *uint32, info []byte) (*securemem.Buffer, error) {
	const op = "x3dh.CalculateSharedSecretAsRecipient"
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLive(op); err != nil {
		return nil, err
	}
	return m.recipientLocked(op, remoteIdentity, remoteEphemeral, usedOneTimePreKeyID, info)
}

// Respond runs the responder side of X3DH in one step under the identity lock.
// It builds the local bundle with eph, derives the root key with the first
// one-time prekey of that bundle and hands both to commit. The prekey is
// removed and wiped only after commit succeeds.
func (m *IdentityKeyMaterial) Respond(eph *EphemeralKey, remoteIdentity, remoteEphemeral domain.X25519Public, info []byte, commit func(local domain.PublicKeyBundle, rootKey []byte) error) error {
	const op = "x3dh.Respond"
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLive(op); err != nil {
		return err
	}
	if err := eph.check(op); err != nil {
		return err
	}
	local := m.bundleLocked(eph)
	var used *uint32
	if opk, ok := local.FirstOneTimePreKey(); ok {
		used = &opk.ID
	}

	root, err := m.recipientLocked(op, remoteIdentity, remoteEphemeral, used, info)
	if err != nil {
		return err
	}
	defer root.Dispose()
	if err := root.Use(func(rk []byte) error { return commit(local, rk) }); err != nil {
		return err
	}
	if used != nil {
		return m.consumeLocked(*used)
	}
	return nil
}

func (m *IdentityKeyMaterial) recipientLocked(op string, remoteIdentity, remoteEphemeral domain.X25519Public, usedOneTimePreKeyID *uint32, info []byte) (*securemem.Buffer, error) {
	if remoteIdentity.IsZero() || remoteEphemeral.IsZero() {
		return nil, failure.New(failure.ErrPeerPubKey, op, "missing remote identity or ephemeral key")
	}

	var opk *x25519Pair
	if usedOneTimePreKeyID != nil {
		for _, k := range m.oneTimePreKeys {
			if k.id == *usedOneTimePreKeyID {
				opk = k
				break
			}
		}
		if opk == nil {
			return nil, failure.New(failure.ErrHandshake, op, "unknown one-time prekey %d", *usedOneTimePreKeyID)
		}
	}

	var dhs [][]byte
	fail := func(err error) (*securemem.Buffer, error) {
		memzero.Zero(dhs...)
		return nil, failure.Wrap(failure.ErrDeriveKey, op, err)
	}

	dh1, err := dhWith(m.identity.priv, remoteEphemeral[:])
	if err != nil {
		return fail(err)
	}
	dhs = append(dhs, dh1)
	dh2, err := dhWith(m.signedPreKey.priv, remoteEphemeral[:])
	if err != nil {
		return fail(err)
	}
	dhs = append(dhs, dh2)
	dh3, err := dhWith(m.signedPreKey.priv, remoteIdentity[:])
	if err != nil {
		return fail(err)
	}
	dhs = append(dhs, dh3)
	if opk != nil {
		dh4, err := dhWith(opk.priv, remoteEphemeral[:])
		if err != nil {
			return fail(err)
		}
		dhs = append(dhs, dh4)
	}

	logrus.WithFields(logrus.Fields{
		"package": "x3dh",
		"op":      op,
		"peer":    crypto.Fingerprint(remoteIdentity[:]),
		"dh":      len(dhs),
	}).Debug("deriving responder root key")
	return deriveRootKey(op, info, dhs...)
}
