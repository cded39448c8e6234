package ratchet

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/securemem"
)

// Session is a finalized ratchet session. It owns the sending and receiving
// chain steps and the root key. All methods are safe for concurrent use and
// are serialized by one mutex.
type Session struct {
	mu          sync.Mutex
	id          domain.SessionID
	isInitiator bool
	createdAt   time.Time
	cfg         config
	nonces      nonceSource

	rootKey   *securemem.Buffer
	sending   *ChainStep // DH pair is the current sending DH key pair
	receiving *ChainStep // DH pair is the persistent DH key pair

	peerBundle     *domain.PublicKeyBundle
	peerDH         domain.X25519Public
	pendingDH      bool
	firstReceiving bool
	disposed       bool
}

// ID returns the session id.
func (s *Session) ID() domain.SessionID { return s.id }

// IsInitiator reports the local role.
func (s *Session) IsInitiator() bool { return s.isInitiator }

// CreatedAt returns the creation time used for expiry.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// PeerBundle returns the peer's bundle recorded at handshake time.
func (s *Session) PeerBundle() (domain.PublicKeyBundle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerBundle == nil {
		return domain.PublicKeyBundle{}, false
	}
	return *s.peerBundle, true
}

// PeerDHPublicKey returns the most recent DH public key of the peer.
func (s *Session) PeerDHPublicKey() domain.X25519Public {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerDH
}

// SendingDHPublicKey returns the current sending DH public key.
func (s *Session) SendingDHPublicKey() domain.X25519Public {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub, _ := s.sending.DHPublicKey()
	return pub
}

// Indices returns the current sending and receiving indices.
func (s *Session) Indices() (sending, receiving uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending.CurrentIndex(), s.receiving.CurrentIndex()
}

func (s *Session) checkUsable(op string) error {
	if s.disposed {
		return failure.New(failure.ErrObjectDisposed, op, "session %d", s.id)
	}
	if age := s.cfg.clock.Now().Sub(s.createdAt); age > s.cfg.sessionTimeout {
		logrus.WithFields(logrus.Fields{
			"package": "ratchet",
			"op":      op,
			"session": s.id,
			"age":     age.String(),
		}).Warn("session expired")
		return failure.New(failure.ErrExpired, op, "session %d is %s old", s.id, age.Truncate(time.Second))
	}
	return nil
}

// PrepareNextSendMessage returns a copy of the key for the next outbound
// message and whether the envelope must carry the new sending DH public key.
// A sender DH ratchet runs every RotationInterval messages and after the peer
// announced a new DH key. The caller disposes the returned key.
func (s *Session) PrepareNextSendMessage() (*MessageKey, bool, error) {
	const op = "ratchet.PrepareNextSendMessage"
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUsable(op); err != nil {
		return nil, false, err
	}

	next := s.sending.CurrentIndex() + 1
	includeDH := false
	if next%s.cfg.rotationInterval == 0 || s.pendingDH {
		if err := s.performDHRatchet(true, nil); err != nil {
			return nil, false, err
		}
		includeDH = true
	}

	key, err := s.sending.GetOrDeriveKeyFor(next)
	if err != nil {
		return nil, false, err
	}
	out, err := key.Clone()
	if err != nil {
		return nil, false, err
	}
	return out, includeDH, nil
}

// ProcessReceivedMessage returns a copy of the key for an inbound message,
// running a receiver DH ratchet first when dh is a new peer key. State changes
// are kept even if the caller later fails to authenticate the message; use
// DecryptInbound for all-or-nothing processing.
func (s *Session) ProcessReceivedMessage(index uint32, dh *domain.X25519Public) (*MessageKey, error) {
	const op = "ratchet.ProcessReceivedMessage"
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUsable(op); err != nil {
		return nil, err
	}
	return s.receiveLocked(index, dh)
}

// DecryptInbound derives the key for an inbound message and calls open with it.
// If derivation or open fails, the receiving step, root key and peer DH state
// are restored to what they were before the call.
func (s *Session) DecryptInbound(index uint32, dh *domain.X25519Public, open func(key *MessageKey) ([]byte, error)) ([]byte, error) {
	const op = "ratchet.DecryptInbound"
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUsable(op); err != nil {
		return nil, err
	}
	snap, err := s.takeSnapshot()
	if err != nil {
		return nil, err
	}

	key, err := s.receiveLocked(index, dh)
	if err != nil {
		s.rollback(snap)
		return nil, err
	}
	pt, err := open(key)
	key.Dispose()
	if err != nil {
		s.rollback(snap)
		logrus.WithFields(logrus.Fields{
			"package": "ratchet",
			"op":      op,
			"session": s.id,
			"index":   index,
		}).Warn("inbound message rejected, state restored")
		return nil, err
	}
	s.commit(snap)
	return pt, nil
}

func (s *Session) receiveLocked(index uint32, dh *domain.X25519Public) (*MessageKey, error) {
	if dh != nil && !dh.Equal(s.peerDH) {
		if err := s.performDHRatchet(false, dh); err != nil {
			return nil, err
		}
	}
	key, err := s.receiving.GetOrDeriveKeyFor(index)
	if err != nil {
		return nil, err
	}
	s.receiving.SetCurrentIndex(key.Index())
	return key.Clone()
}

// GenerateNextNonce returns 8 random bytes followed by the little-endian value
// of the session's nonce counter after an atomic increment.
func (s *Session) GenerateNextNonce() ([domain.NonceSize]byte, error) {
	return s.nonces.next()
}

// Dispose wipes cached keys, chain keys, the root key and DH private keys, in
// that order. Safe to call more than once.
func (s *Session) Dispose() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.sending.clearCache()
	s.receiving.clearCache()
	s.sending.chainKey.Dispose()
	s.receiving.chainKey.Dispose()
	s.rootKey.Dispose()
	s.sending.dhPrivate.Dispose()
	s.receiving.dhPrivate.Dispose()
	s.disposed = true
}

// receiveSnapshot holds what an inbound message may change.
type receiveSnapshot struct {
	receiving      *stepMark
	rootKey        *securemem.Buffer
	peerDH         domain.X25519Public
	pendingDH      bool
	firstReceiving bool
}

func (s *Session) takeSnapshot() (*receiveSnapshot, error) {
	root, err := s.rootKey.Clone()
	if err != nil {
		return nil, err
	}
	mark, err := s.receiving.mark()
	if err != nil {
		root.Dispose()
		return nil, err
	}
	return &receiveSnapshot{
		receiving:      mark,
		rootKey:        root,
		peerDH:         s.peerDH,
		pendingDH:      s.pendingDH,
		firstReceiving: s.firstReceiving,
	}, nil
}

func (s *Session) rollback(snap *receiveSnapshot) {
	s.receiving.restore(snap.receiving)
	s.rootKey.Dispose()
	s.rootKey = snap.rootKey
	s.peerDH = snap.peerDH
	s.pendingDH = snap.pendingDH
	s.firstReceiving = snap.firstReceiving
}

func (s *Session) commit(snap *receiveSnapshot) {
	s.receiving.commit(snap.receiving)
	snap.rootKey.Dispose()
}
