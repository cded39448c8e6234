package engine

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/sirupsen/logrus"

	"securechannel/internal/crypto"
	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/protocol/ratchet"
	"securechannel/internal/protocol/wire"
	"securechannel/internal/protocol/x3dh"
)

// Engine runs the handshake and message flow of one connection.
type Engine struct {
	mu       sync.Mutex
	identity *x3dh.IdentityKeyMaterial
	opts     []ratchet.Option
	clock    domain.TimeProvider

	connectID    domain.ConnectID
	exchangeType domain.ExchangeType
	state        domain.HandshakeState
	started      bool

	ephemeral *x3dh.EphemeralKey
	pending   *ratchet.Pending
	session   *ratchet.Session
	closed    bool
}

// New returns an engine that uses identity for the handshake. opts configure
// the ratchet session it creates. The engine does not own identity.
func New(identity *x3dh.IdentityKeyMaterial, opts ...ratchet.Option) *Engine {
	return &Engine{identity: identity, opts: opts, clock: ratchet.TimeProviderOf(opts...)}
}

func (e *Engine) logger(op string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"package":    "engine",
		"op":         op,
		"connect_id": e.connectID,
	})
}

// ConnectID returns the connection the engine serves.
func (e *Engine) ConnectID() domain.ConnectID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connectID
}

// State returns the handshake state.
func (e *Engine) State() domain.HandshakeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ExchangeType returns the exchange type negotiated by the handshake.
func (e *Engine) ExchangeType() domain.ExchangeType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exchangeType
}

// Session returns the ratchet session once the handshake is complete.
func (e *Engine) Session() (*ratchet.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, e.session != nil
}

func (e *Engine) checkFresh(op string) error {
	switch {
	case e.closed:
		return failure.New(failure.ErrObjectDisposed, op, "engine closed")
	case e.started:
		return failure.New(failure.ErrHandshake, op, "handshake already started in state %s", e.state)
	}
	return nil
}

// localMessage builds the handshake message carrying the local bundle.
func (e *Engine) localMessage(state domain.HandshakeState, bundle domain.PublicKeyBundle, initialDH domain.X25519Public) (domain.HandshakeMessage, error) {
	payload, err := wire.EncodeBundle(bundle)
	if err != nil {
		return domain.HandshakeMessage{}, err
	}
	return domain.HandshakeMessage{
		State:              state,
		ExchangeType:       e.exchangeType,
		Payload:            payload,
		InitialDHPublicKey: initialDH,
	}, nil
}

// peerBundle decodes the bundle of a handshake message and checks its signed
// prekey signature.
func peerBundle(op string, msg domain.HandshakeMessage) (domain.PublicKeyBundle, error) {
	b, err := wire.DecodeBundle(msg.Payload)
	if err != nil {
		return b, failure.Wrap(failure.ErrHandshake, op, err)
	}
	ok, err := x3dh.VerifyRemoteSpkSignature(b.IdentityEd25519[:], b.SignedPreKey[:], b.SignedPreKeySignature[:])
	if err != nil {
		return b, err
	}
	if !ok {
		return b, failure.New(failure.ErrHandshake, op, "signed prekey signature does not verify")
	}
	if msg.InitialDHPublicKey.IsZero() {
		return b, failure.New(failure.ErrHandshake, op, "missing initial dh public key")
	}
	return b, nil
}

// BeginHandshake starts a handshake as initiator and returns the Init message
// for the peer.
func (e *Engine) BeginHandshake(connectID domain.ConnectID, exchangeType domain.ExchangeType) (domain.HandshakeMessage, error) {
	const op = "engine.BeginHandshake"
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkFresh(op); err != nil {
		return domain.HandshakeMessage{}, err
	}
	if !exchangeType.Valid() {
		return domain.HandshakeMessage{}, failure.New(failure.ErrInvalidInput, op, "unknown exchange type %d", exchangeType)
	}
	e.connectID, e.exchangeType = connectID, exchangeType

	eph, err := e.identity.GenerateEphemeralKeyPair()
	if err != nil {
		return domain.HandshakeMessage{}, err
	}
	pending, err := ratchet.New(domain.SessionID(connectID), true, e.opts...)
	if err != nil {
		eph.Dispose()
		return domain.HandshakeMessage{}, err
	}
	bundle, err := e.identity.PublicBundle(eph)
	if err != nil {
		eph.Dispose()
		pending.Dispose()
		return domain.HandshakeMessage{}, err
	}
	msg, err := e.localMessage(domain.HandshakeInit, bundle, pending.InitialDHPublicKey())
	if err != nil {
		eph.Dispose()
		pending.Dispose()
		return domain.HandshakeMessage{}, err
	}

	e.ephemeral = eph
	e.pending = pending
	e.state = domain.HandshakeInit
	e.started = true
	e.logger(op).WithField("exchange", exchangeType.String()).Debug("handshake started")
	return msg, nil
}

// RespondToHandshake answers an Init message as responder. On success the
// session is ready and the returned Pending message lets the initiator finish.
func (e *Engine) RespondToHandshake(connectID domain.ConnectID, peer domain.HandshakeMessage) (domain.HandshakeMessage, error) {
	const op = "engine.RespondToHandshake"
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkFresh(op); err != nil {
		return domain.HandshakeMessage{}, err
	}
	if peer.State != domain.HandshakeInit {
		return domain.HandshakeMessage{}, failure.New(failure.ErrHandshake, op, "expected %s message, got %s", domain.HandshakeInit, peer.State)
	}
	if !peer.ExchangeType.Valid() {
		return domain.HandshakeMessage{}, failure.New(failure.ErrHandshake, op, "unknown exchange type %d", peer.ExchangeType)
	}
	remote, err := peerBundle(op, peer)
	if err != nil {
		return domain.HandshakeMessage{}, err
	}
	if !remote.HasEphemeral() {
		return domain.HandshakeMessage{}, failure.New(failure.ErrHandshake, op, "initiator bundle has no ephemeral key")
	}

	eph, err := e.identity.GenerateEphemeralKeyPair()
	if err != nil {
		return domain.HandshakeMessage{}, err
	}
	defer eph.Dispose()
	pending, err := ratchet.New(domain.SessionID(connectID), false, e.opts...)
	if err != nil {
		return domain.HandshakeMessage{}, err
	}
	pending.SetPeerBundle(remote)
	e.exchangeType = peer.ExchangeType

	var (
		msg     domain.HandshakeMessage
		session *ratchet.Session
	)
	err = e.identity.Respond(eph, remote.IdentityX25519, remote.EphemeralX25519, x3dh.RootKeyInfo, func(local domain.PublicKeyBundle, rk []byte) error {
		var merr error
		if msg, merr = e.localMessage(domain.HandshakePending, local, pending.InitialDHPublicKey()); merr != nil {
			return merr
		}
		session, merr = pending.Finalize(rk, peer.InitialDHPublicKey)
		return merr
	})
	if err != nil {
		pending.Dispose()
		return domain.HandshakeMessage{}, err
	}

	e.connectID = connectID
	e.session = session
	e.started = true
	e.state = domain.HandshakeComplete
	e.logger(op).WithFields(logrus.Fields{
		"peer":     crypto.Fingerprint(remote.IdentityX25519[:]),
		"exchange": e.exchangeType.String(),
	}).Info("handshake complete (responder)")
	return msg, nil
}

// CompleteHandshake finishes a handshake begun with BeginHandshake using the
// responder's Pending message.
func (e *Engine) CompleteHandshake(peer domain.HandshakeMessage) error {
	const op = "engine.CompleteHandshake"
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.closed:
		return failure.New(failure.ErrObjectDisposed, op, "engine closed")
	case e.pending == nil || e.state != domain.HandshakeInit:
		return failure.New(failure.ErrHandshake, op, "no handshake in progress (state %s)", e.state)
	case peer.State != domain.HandshakePending:
		return failure.New(failure.ErrHandshake, op, "expected %s message, got %s", domain.HandshakePending, peer.State)
	}
	remote, err := peerBundle(op, peer)
	if err != nil {
		return err
	}

	root, err := e.identity.X3DHDeriveSharedSecret(e.ephemeral, remote, x3dh.RootKeyInfo)
	if err != nil {
		return err
	}
	defer root.Dispose()

	e.pending.SetPeerBundle(remote)
	var session *ratchet.Session
	err = root.Use(func(rk []byte) error {
		var ferr error
		session, ferr = e.pending.Finalize(rk, peer.InitialDHPublicKey)
		return ferr
	})
	if err != nil {
		return err
	}

	e.ephemeral.Dispose()
	e.ephemeral, e.pending = nil, nil
	e.session = session
	e.state = domain.HandshakeComplete
	e.logger(op).WithFields(logrus.Fields{
		"peer":     crypto.Fingerprint(remote.IdentityX25519[:]),
		"exchange": e.exchangeType.String(),
	}).Info("handshake complete (initiator)")
	return nil
}

func (e *Engine) ready(op string) (*ratchet.Session, domain.PublicKeyBundle, error) {
	if e.closed {
		return nil, domain.PublicKeyBundle{}, failure.New(failure.ErrObjectDisposed, op, "engine closed")
	}
	if e.session == nil || e.state != domain.HandshakeComplete {
		return nil, domain.PublicKeyBundle{}, failure.New(failure.ErrNotInitialized, op, "handshake not complete (state %s)", e.state)
	}
	peer, ok := e.session.PeerBundle()
	if !ok {
		return nil, domain.PublicKeyBundle{}, failure.New(failure.ErrNotInitialized, op, "session has no peer bundle")
	}
	return e.session, peer, nil
}

// associatedData is sender identity || receiver identity.
func associatedData(sender, receiver domain.X25519Public) []byte {
	ad := make([]byte, 0, 2*domain.KeySize)
	ad = append(ad, sender[:]...)
	return append(ad, receiver[:]...)
}

func newRequestID() (uint32, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, failure.Wrap(failure.ErrUnexpected, "engine.newRequestID", err)
		}
		if id := binary.LittleEndian.Uint32(b[:]); id != 0 {
			return id, nil
		}
	}
}

// ProduceOutboundMessage encrypts plaintext with the next sending key.
func (e *Engine) ProduceOutboundMessage(plaintext []byte) (domain.CipherEnvelope, error) {
	const op = "engine.ProduceOutboundMessage"
	e.mu.Lock()
	defer e.mu.Unlock()

	session, peer, err := e.ready(op)
	if err != nil {
		return domain.CipherEnvelope{}, err
	}
	key, includeDH, err := session.PrepareNextSendMessage()
	if err != nil {
		return domain.CipherEnvelope{}, err
	}
	defer key.Dispose()

	nonce, err := session.GenerateNextNonce()
	if err != nil {
		return domain.CipherEnvelope{}, err
	}
	requestID, err := newRequestID()
	if err != nil {
		return domain.CipherEnvelope{}, err
	}
	ad := associatedData(e.identity.IdentityX25519Public(), peer.IdentityX25519)

	var ct []byte
	err = key.Use(func(k []byte) error {
		var serr error
		ct, serr = crypto.SealAESGCM(k, nonce[:], plaintext, ad)
		return serr
	})
	if err != nil {
		return domain.CipherEnvelope{}, err
	}

	env := domain.CipherEnvelope{
		RequestID:    requestID,
		Nonce:        nonce,
		RatchetIndex: key.Index(),
		Cipher:       ct,
		CreatedAt:    e.clock.Now().UTC(),
	}
	if includeDH {
		pub := session.SendingDHPublicKey()
		env.DHPublicKey = &pub
	}
	e.logger(op).WithFields(logrus.Fields{
		"index":      env.RatchetIndex,
		"request_id": requestID,
		"dh":         includeDH,
	}).Debug("message sealed")
	return env, nil
}

// ProcessInboundMessage authenticates and decrypts env. A failure leaves the
// session unchanged and usable.
func (e *Engine) ProcessInboundMessage(env domain.CipherEnvelope) ([]byte, error) {
	const op = "engine.ProcessInboundMessage"
	e.mu.Lock()
	defer e.mu.Unlock()

	session, peer, err := e.ready(op)
	if err != nil {
		return nil, err
	}
	if len(env.Cipher) < domain.TagSize {
		return nil, failure.New(failure.ErrInvalidInput, op, "cipher shorter than tag")
	}
	ad := associatedData(peer.IdentityX25519, e.identity.IdentityX25519Public())

	pt, err := session.DecryptInbound(env.RatchetIndex, env.DHPublicKey, func(key *ratchet.MessageKey) ([]byte, error) {
		var out []byte
		err := key.Use(func(k []byte) error {
			var oerr error
			out, oerr = crypto.OpenAESGCM(k, env.Nonce[:], env.Cipher, ad)
			return oerr
		})
		return out, err
	})
	if err != nil {
		e.logger(op).WithFields(logrus.Fields{
			"index":      env.RatchetIndex,
			"request_id": env.RequestID,
		}).WithError(err).Warn("inbound message rejected")
		return nil, err
	}
	return pt, nil
}

// Close disposes the session or pending session. The identity material is
// left to its owner.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.ephemeral.Dispose()
	e.pending.Dispose()
	e.session.Dispose()
	e.ephemeral, e.pending, e.session = nil, nil, nil
	e.closed = true
}
