package x3dh

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/sirupsen/logrus"

	"securechannel/internal/crypto"
	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/securemem"
	"securechannel/internal/util/memzero"
)

type x25519Pair struct {
	id   uint32
	priv *securemem.Buffer
	pub  domain.X25519Public
}

func (p *x25519Pair) dispose() {
	if p != nil {
		p.priv.Dispose()
	}
}

func newX25519Pair(id uint32) (*x25519Pair, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(priv[:])
	buf, err := securemem.FromBytes(priv[:])
	if err != nil {
		return nil, err
	}
	return &x25519Pair{id: id, priv: buf, pub: pub}, nil
}

// IdentityKeyMaterial is a party's long-term identity and its prekeys. Safe for
// concurrent use; each handshake owns its own EphemeralKey.
type IdentityKeyMaterial struct {
	mu sync.Mutex

	edPriv *securemem.Buffer
	edPub  domain.Ed25519Public

	identity *x25519Pair

	signedPreKey *x25519Pair
	spkSig       domain.Signature

	oneTimePreKeys []*x25519Pair

	disposed bool
}

// Create generates a fresh identity with oneTimeKeyCount one-time prekeys.
// Partially generated keys are wiped on failure.
func Create(oneTimeKeyCount int) (*IdentityKeyMaterial, error) {
	const op = "x3dh.Create"
	if oneTimeKeyCount < 0 {
		return nil, failure.New(failure.ErrInvalidInput, op, "negative one-time key count %d", oneTimeKeyCount)
	}

	m := &IdentityKeyMaterial{}
	ok := false
	defer func() {
		if !ok {
			m.Dispose()
		}
	}()

	edPriv, edPub, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, failure.Wrap(failure.ErrKeyGeneration, op, err)
	}
	m.edPriv, err = securemem.FromBytes(edPriv[:])
	memzero.Zero(edPriv[:])
	if err != nil {
		return nil, failure.Wrap(failure.ErrKeyGeneration, op, err)
	}
	m.edPub = edPub

	if m.identity, err = newX25519Pair(0); err != nil {
		return nil, failure.Wrap(failure.ErrKeyGeneration, op, err)
	}

	used := map[uint32]struct{}{}
	spkID, err := randomID(used)
	if err != nil {
		return nil, failure.Wrap(failure.ErrKeyGeneration, op, err)
	}
	if m.signedPreKey, err = newX25519Pair(spkID); err != nil {
		return nil, failure.Wrap(failure.ErrKeyGeneration, op, err)
	}
	err = m.edPriv.Use(func(sk []byte) error {
		var serr error
		m.spkSig, serr = crypto.SignEd25519(sk, m.signedPreKey.pub[:])
		return serr
	})
	if err != nil {
		return nil, failure.Wrap(failure.ErrKeyGeneration, op, err)
	}

	for i := 0; i < oneTimeKeyCount; i++ {
		id, err := randomID(used)
		if err != nil {
			return nil, failure.Wrap(failure.ErrKeyGeneration, op, err)
		}
		opk, err := newX25519Pair(id)
		if err != nil {
			return nil, failure.Wrap(failure.ErrKeyGeneration, op, err)
		}
		m.oneTimePreKeys = append(m.oneTimePreKeys, opk)
	}

	ok = true
	logrus.WithFields(logrus.Fields{
		"package":     "x3dh",
		"op":          op,
		"identity":    crypto.Fingerprint(m.identity.pub[:]),
		"one_time_pk": oneTimeKeyCount,
	}).Debug("identity key material created")
	return m, nil
}

// randomID returns a random non-zero id not yet in used and records it.
func randomID(used map[uint32]struct{}) (uint32, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		id := binary.LittleEndian.Uint32(b[:])
		if _, taken := used[id]; id == 0 || taken {
			continue
		}
		used[id] = struct{}{}
		return id, nil
	}
}

func (m *IdentityKeyMaterial) checkLive(op string) error {
	if m.disposed {
		return failure.New(failure.ErrObjectDisposed, op, "identity key material disposed")
	}
	return nil
}

// IdentityX25519Public returns the X25519 identity public key.
func (m *IdentityKeyMaterial) IdentityX25519Public() domain.X25519Public {
	return m.identity.pub
}

// EphemeralKey is the X25519 key pair of one handshake attempt. The handshake
// that generated it owns it and disposes it when done.
type EphemeralKey struct {
	pair *x25519Pair
}

// Public returns the ephemeral public key.
func (k *EphemeralKey) Public() domain.X25519Public { return k.pair.pub }

// IsDisposed reports whether Dispose has run.
func (k *EphemeralKey) IsDisposed() bool { return k.pair.priv.IsDisposed() }

// Dispose wipes the ephemeral private key. Safe to call more than once.
func (k *EphemeralKey) Dispose() {
	if k != nil {
		k.pair.dispose()
	}
}

func (k *EphemeralKey) check(op string) error {
	if k == nil || k.IsDisposed() {
		return failure.New(failure.ErrHandshake, op, "no local ephemeral key")
	}
	return nil
}

// GenerateEphemeralKeyPair returns a fresh ephemeral key for one handshake
// attempt. Concurrent handshakes on the same identity each hold their own.
func (m *IdentityKeyMaterial) GenerateEphemeralKeyPair() (*EphemeralKey, error) {
	const op = "x3dh.GenerateEphemeralKeyPair"
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLive(op); err != nil {
		return nil, err
	}

	eph, err := newX25519Pair(0)
	if err != nil {
		return nil, failure.Wrap(failure.ErrKeyGeneration, op, err)
	}
	return &EphemeralKey{pair: eph}, nil
}

// PublicBundle returns the public view of the key material. A non-nil eph is
// carried as the bundle's ephemeral key.
func (m *IdentityKeyMaterial) PublicBundle(eph *EphemeralKey) (domain.PublicKeyBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLive("x3dh.PublicBundle"); err != nil {
		return domain.PublicKeyBundle{}, err
	}
	return m.bundleLocked(eph), nil
}

func (m *IdentityKeyMaterial) bundleLocked(eph *EphemeralKey) domain.PublicKeyBundle {
	b := domain.PublicKeyBundle{
		IdentityEd25519:       m.edPub,
		IdentityX25519:        m.identity.pub,
		SignedPreKeyID:        m.signedPreKey.id,
		SignedPreKey:          m.signedPreKey.pub,
		SignedPreKeySignature: m.spkSig,
	}
	for _, opk := range m.oneTimePreKeys {
		b.OneTimePreKeys = append(b.OneTimePreKeys, domain.OneTimePreKeyRecord{ID: opk.id, Pub: opk.pub})
	}
	if eph != nil {
		b.EphemeralX25519 = eph.Public()
	}
	return b
}

// OneTimePreKeyIDs lists the ids of the remaining one-time prekeys in bundle
// order.
func (m *IdentityKeyMaterial) OneTimePreKeyIDs() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint32, 0, len(m.oneTimePreKeys))
	for _, opk := range m.oneTimePreKeys {
		ids = append(ids, opk.id)
	}
	return ids
}

// ConsumeOneTimePreKey removes and wipes the one-time prekey with id.
func (m *IdentityKeyMaterial) ConsumeOneTimePreKey(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLive("x3dh.ConsumeOneTimePreKey"); err != nil {
		return err
	}
	return m.consumeLocked(id)
}

func (m *IdentityKeyMaterial) consumeLocked(id uint32) error {
	for i, opk := range m.oneTimePreKeys {
		if opk.id == id {
			opk.dispose()
			m.oneTimePreKeys = append(m.oneTimePreKeys[:i], m.oneTimePreKeys[i+1:]...)
			return nil
		}
	}
	return failure.New(failure.ErrInvalidInput, "x3dh.ConsumeOneTimePreKey", "unknown one-time prekey %d", id)
}

// Dispose wipes every private key. Safe to call more than once.
func (m *IdentityKeyMaterial) Dispose() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, opk := range m.oneTimePreKeys {
		opk.dispose()
	}
	m.signedPreKey.dispose()
	m.identity.dispose()
	m.edPriv.Dispose()
	m.oneTimePreKeys = nil
	m.disposed = true
}

// VerifyRemoteSpkSignature checks the Ed25519 signature over a signed prekey.
// Mis-sized inputs fail with failure.ErrHandshake.
func VerifyRemoteSpkSignature(identityEd25519, signedPreKey, signature []byte) (bool, error) {
	const op = "x3dh.VerifyRemoteSpkSignature"
	if len(identityEd25519) != domain.KeySize || len(signedPreKey) != domain.KeySize || len(signature) != domain.SignatureSize {
		return false, failure.New(failure.ErrHandshake, op, "key or signature has wrong length")
	}
	var (
		pub domain.Ed25519Public
		sig domain.Signature
	)
	copy(pub[:], identityEd25519)
	copy(sig[:], signature)
	return crypto.VerifyEd25519(pub, signedPreKey, sig), nil
}
