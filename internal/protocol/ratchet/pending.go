package ratchet

import (
	"sync"
	"time"

	"securechannel/internal/crypto"
	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/securemem"
	"securechannel/internal/util/memzero"
)

var (
	infoInitSend = []byte("InitSend")
	infoInitRecv = []byte("InitRecv")
)

// Pending is a session whose handshake has not produced a root key yet. It
// owns the initial sending DH key pair, announced to the peer as the initial
// DH public key, and the persistent DH key pair that seeds the receiving step.
type Pending struct {
	mu          sync.Mutex
	id          domain.SessionID
	isInitiator bool
	createdAt   time.Time
	cfg         config

	sending       *ChainStep
	sendingPub    domain.X25519Public
	persistent    *securemem.Buffer
	persistentPub domain.X25519Public
	peerBundle    *domain.PublicKeyBundle

	finalized bool
	disposed  bool
}

// New creates a pending session with fresh sending and persistent DH key pairs
// and a placeholder sending chain key.
func New(id domain.SessionID, isInitiator bool, opts ...Option) (*Pending, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	sendPriv, sendPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(sendPriv[:])
	persPriv, persPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(persPriv[:])

	placeholder := make([]byte, domain.KeySize)
	sending, err := NewChainStep(Sender, placeholder, &DHKeys{Private: sendPriv[:], Public: sendPub[:]}, cfg.cacheWindow)
	if err != nil {
		return nil, err
	}
	persistent, err := securemem.FromBytes(persPriv[:])
	if err != nil {
		sending.Dispose()
		return nil, err
	}
	return &Pending{
		id:            id,
		isInitiator:   isInitiator,
		createdAt:     cfg.clock.Now(),
		cfg:           cfg,
		sending:       sending,
		sendingPub:    sendPub,
		persistent:    persistent,
		persistentPub: persPub,
	}, nil
}

// ID returns the session id.
func (p *Pending) ID() domain.SessionID { return p.id }

// IsInitiator reports the local role.
func (p *Pending) IsInitiator() bool { return p.isInitiator }

// InitialDHPublicKey returns the sending DH public key announced during the
// handshake. It stays available after Finalize.
func (p *Pending) InitialDHPublicKey() domain.X25519Public {
	return p.sendingPub
}

// SetPeerBundle records the peer's public bundle for the session.
func (p *Pending) SetPeerBundle(b domain.PublicKeyBundle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peerBundle = &b
}

// Finalize derives both chain keys from rootKey and returns the usable session.
// The pending value hands its keys to the session and cannot be finalized again.
func (p *Pending) Finalize(rootKey []byte, peerInitialDH domain.X25519Public) (*Session, error) {
	const op = "ratchet.Finalize"
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.finalized:
		return nil, failure.New(failure.ErrAlreadyFinalized, op, "session %d", p.id)
	case p.disposed:
		return nil, failure.New(failure.ErrObjectDisposed, op, "session %d", p.id)
	}
	if len(rootKey) != domain.KeySize {
		return nil, failure.New(failure.ErrInvalidInput, op, "root key is %d bytes", len(rootKey))
	}
	if peerInitialDH.IsZero() {
		return nil, failure.New(failure.ErrInvalidInput, op, "missing peer initial dh public key")
	}

	sendInfo, recvInfo := infoInitSend, infoInitRecv
	if !p.isInitiator {
		sendInfo, recvInfo = recvInfo, sendInfo
	}
	sendCK, err := crypto.HKDFExpand(rootKey, sendInfo, domain.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(sendCK)
	recvCK, err := crypto.HKDFExpand(rootKey, recvInfo, domain.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(recvCK)

	persPriv, err := p.persistent.ReadBytes(domain.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(persPriv)
	receiving, err := NewChainStep(Receiver, recvCK, &DHKeys{Private: persPriv, Public: p.persistentPub[:]}, p.cfg.cacheWindow)
	if err != nil {
		return nil, err
	}
	root, err := securemem.FromBytes(rootKey)
	if err != nil {
		receiving.Dispose()
		return nil, err
	}
	if err := p.sending.UpdateKeysAfterDhRatchet(sendCK, nil); err != nil {
		receiving.Dispose()
		root.Dispose()
		return nil, err
	}

	s := &Session{
		id:             p.id,
		isInitiator:    p.isInitiator,
		createdAt:      p.createdAt,
		cfg:            p.cfg,
		rootKey:        root,
		sending:        p.sending,
		receiving:      receiving,
		peerBundle:     p.peerBundle,
		peerDH:         peerInitialDH,
		firstReceiving: true,
	}
	p.sending = nil
	p.persistent.Dispose()
	p.persistent = nil
	p.finalized = true
	return s, nil
}

// Dispose wipes the keys still held by a pending session.
func (p *Pending) Dispose() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sending.Dispose()
	p.persistent.Dispose()
	p.sending, p.persistent = nil, nil
	p.disposed = true
}
