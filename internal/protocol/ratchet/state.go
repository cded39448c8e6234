package ratchet

import (
	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/securemem"
)

// ToState exports the session in its persisted form. Cached message keys are
// not exported. The caller wipes the result with Wipe when done.
func (s *Session) ToState() (domain.RatchetState, error) {
	const op = "ratchet.ToState"
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return domain.RatchetState{}, failure.New(failure.ErrObjectDisposed, op, "session %d", s.id)
	}
	st := domain.RatchetState{
		IsInitiator:             s.isInitiator,
		CreatedAt:               s.createdAt,
		NonceCounter:            s.nonces.counter.Load(),
		PeerDHPublicKey:         s.peerDH,
		IsFirstReceivingRatchet: s.firstReceiving,
		ReceivedNewDHKeyPending: s.pendingDH,
	}
	if s.peerBundle != nil {
		b := *s.peerBundle
		b.OneTimePreKeys = append([]domain.OneTimePreKeyRecord(nil), b.OneTimePreKeys...)
		st.PeerBundle = &b
	}
	var err error
	if err = s.rootKey.Read(st.RootKey[:]); err != nil {
		return domain.RatchetState{}, err
	}
	if st.SendingStep, err = s.sending.toState(); err != nil {
		st.Wipe()
		return domain.RatchetState{}, err
	}
	if st.ReceivingStep, err = s.receiving.toState(); err != nil {
		st.Wipe()
		return domain.RatchetState{}, err
	}
	return st, nil
}

// FromState rebuilds a finalized session from its persisted form. Chain step
// caches start empty. The sending step must carry a DH key pair.
func FromState(id domain.SessionID, st domain.RatchetState, opts ...Option) (*Session, error) {
	const op = "ratchet.FromState"
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	if st.SendingStep.DHKeyPair == nil {
		return nil, failure.New(failure.ErrInvalidInput, op, "sending step has no dh key pair")
	}

	sending, err := chainStepFromState(Sender, st.SendingStep, cfg.cacheWindow)
	if err != nil {
		return nil, err
	}
	receiving, err := chainStepFromState(Receiver, st.ReceivingStep, cfg.cacheWindow)
	if err != nil {
		sending.Dispose()
		return nil, err
	}
	root, err := securemem.FromBytes(st.RootKey[:])
	if err != nil {
		sending.Dispose()
		receiving.Dispose()
		return nil, err
	}

	s := &Session{
		id:             id,
		isInitiator:    st.IsInitiator,
		createdAt:      st.CreatedAt,
		cfg:            cfg,
		rootKey:        root,
		sending:        sending,
		receiving:      receiving,
		peerDH:         st.PeerDHPublicKey,
		pendingDH:      st.ReceivedNewDHKeyPending,
		firstReceiving: st.IsFirstReceivingRatchet,
	}
	if st.PeerBundle != nil {
		b := *st.PeerBundle
		s.peerBundle = &b
	}
	s.nonces.counter.Store(st.NonceCounter)
	return s, nil
}
