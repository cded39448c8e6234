package engine

import (
	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/protocol/ratchet"
	"securechannel/internal/protocol/x3dh"
)

// Snapshot exports the ratchet state of a completed handshake. The caller
// wipes the result.
func (e *Engine) Snapshot() (domain.RatchetState, error) {
	const op = "engine.Snapshot"
	e.mu.Lock()
	defer e.mu.Unlock()

	session, _, err := e.ready(op)
	if err != nil {
		return domain.RatchetState{}, err
	}
	return session.ToState()
}

// Restore rebuilds an engine in the Complete state from a snapshot. The state
// must carry the peer bundle, whose identity key binds every message.
func Restore(connectID domain.ConnectID, exchangeType domain.ExchangeType, identity *x3dh.IdentityKeyMaterial, st domain.RatchetState, opts ...ratchet.Option) (*Engine, error) {
	const op = "engine.Restore"
	if st.PeerBundle == nil {
		return nil, failure.New(failure.ErrInvalidInput, op, "state has no peer bundle")
	}
	if !exchangeType.Valid() {
		return nil, failure.New(failure.ErrInvalidInput, op, "unknown exchange type %d", exchangeType)
	}
	session, err := ratchet.FromState(domain.SessionID(connectID), st, opts...)
	if err != nil {
		return nil, err
	}
	e := New(identity, opts...)
	e.connectID = connectID
	e.exchangeType = exchangeType
	e.session = session
	e.state = domain.HandshakeComplete
	e.started = true
	e.logger(op).Debug("engine restored")
	return e, nil
}
