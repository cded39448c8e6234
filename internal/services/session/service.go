package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/protocol/engine"
	"securechannel/internal/protocol/ratchet"
	"securechannel/internal/protocol/x3dh"
)

// Service is a registry of engines keyed by connect id.
type Service struct {
	mu       sync.Mutex
	identity *x3dh.IdentityKeyMaterial
	store    domain.RatchetStateStore
	opts     []ratchet.Option
	engines  map[domain.ConnectID]*engine.Engine
}

// New returns a service for identity that persists through store. opts are
// passed to every ratchet session the service creates or restores.
func New(identity *x3dh.IdentityKeyMaterial, store domain.RatchetStateStore, opts ...ratchet.Option) *Service {
	return &Service{
		identity: identity,
		store:    store,
		opts:     opts,
		engines:  make(map[domain.ConnectID]*engine.Engine),
	}
}

func (s *Service) lookup(op string, id domain.ConnectID) (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[id]
	if !ok {
		return nil, failure.New(failure.ErrNotInitialized, op, "no channel for connect id %d", id)
	}
	return e, nil
}

// register adds a fresh engine for id, failing if one already exists.
func (s *Service) register(op string, id domain.ConnectID) (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.engines[id]; exists {
		return nil, failure.New(failure.ErrInvalidInput, op, "channel %d already exists", id)
	}
	e := engine.New(s.identity, s.opts...)
	s.engines[id] = e
	return e, nil
}

func (s *Service) drop(id domain.ConnectID, e *engine.Engine) {
	s.mu.Lock()
	if s.engines[id] == e {
		delete(s.engines, id)
	}
	s.mu.Unlock()
	e.Close()
}

// Engine returns the engine for id.
func (s *Service) Engine(id domain.ConnectID) (*engine.Engine, bool) {
	e, err := s.lookup("session.Engine", id)
	return e, err == nil
}

// Begin starts a handshake as initiator on a new channel.
func (s *Service) Begin(id domain.ConnectID, exchangeType domain.ExchangeType) (domain.HandshakeMessage, error) {
	e, err := s.register("session.Begin", id)
	if err != nil {
		return domain.HandshakeMessage{}, err
	}
	msg, err := e.BeginHandshake(id, exchangeType)
	if err != nil {
		s.drop(id, e)
		return domain.HandshakeMessage{}, err
	}
	return msg, nil
}

// Respond answers an initiator's handshake on a new channel.
func (s *Service) Respond(id domain.ConnectID, peer domain.HandshakeMessage) (domain.HandshakeMessage, error) {
	e, err := s.register("session.Respond", id)
	if err != nil {
		return domain.HandshakeMessage{}, err
	}
	msg, err := e.RespondToHandshake(id, peer)
	if err != nil {
		s.drop(id, e)
		return domain.HandshakeMessage{}, err
	}
	return msg, nil
}

// Complete finishes a handshake started with Begin. A failed attempt removes
// the channel.
func (s *Service) Complete(id domain.ConnectID, peer domain.HandshakeMessage) error {
	e, err := s.lookup("session.Complete", id)
	if err != nil {
		return err
	}
	if err := e.CompleteHandshake(peer); err != nil {
		s.drop(id, e)
		return err
	}
	return nil
}

// Encrypt seals plaintext on channel id.
func (s *Service) Encrypt(id domain.ConnectID, plaintext []byte) (domain.CipherEnvelope, error) {
	e, err := s.lookup("session.Encrypt", id)
	if err != nil {
		return domain.CipherEnvelope{}, err
	}
	return e.ProduceOutboundMessage(plaintext)
}

// Decrypt opens env on channel id.
func (s *Service) Decrypt(id domain.ConnectID, env domain.CipherEnvelope) ([]byte, error) {
	e, err := s.lookup("session.Decrypt", id)
	if err != nil {
		return nil, err
	}
	return e.ProcessInboundMessage(env)
}

// Save persists the ratchet state of channel id.
func (s *Service) Save(id domain.ConnectID) error {
	e, err := s.lookup("session.Save", id)
	if err != nil {
		return err
	}
	st, err := e.Snapshot()
	if err != nil {
		return err
	}
	defer st.Wipe()
	return s.store.SaveRatchetState(id, st)
}

// Restore loads the saved state of channel id into a new engine. It fails if
// the channel is already open or nothing was saved.
func (s *Service) Restore(id domain.ConnectID, exchangeType domain.ExchangeType) error {
	const op = "session.Restore"
	st, ok, err := s.store.LoadRatchetState(id)
	if err != nil {
		return err
	}
	if !ok {
		return failure.New(failure.ErrNotInitialized, op, "no saved state for connect id %d", id)
	}
	defer st.Wipe()

	e, err := engine.Restore(id, exchangeType, s.identity, st, s.opts...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.engines[id]; exists {
		e.Close()
		return failure.New(failure.ErrInvalidInput, op, "channel %d already open", id)
	}
	s.engines[id] = e
	logrus.WithFields(logrus.Fields{
		"package":    "session",
		"op":         op,
		"connect_id": id,
	}).Info("channel restored")
	return nil
}

// Forget closes channel id and deletes its saved state.
func (s *Service) Forget(id domain.ConnectID) error {
	s.mu.Lock()
	e, ok := s.engines[id]
	delete(s.engines, id)
	s.mu.Unlock()
	if ok {
		e.Close()
	}
	return s.store.DeleteRatchetState(id)
}

// SaveAll persists every completed channel and returns the first error.
func (s *Service) SaveAll() error {
	var first error
	for _, id := range s.ConnectIDs() {
		e, ok := s.Engine(id)
		if !ok || e.State() != domain.HandshakeComplete {
			continue
		}
		if err := s.Save(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ConnectIDs lists the open channels.
func (s *Service) ConnectIDs() []domain.ConnectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.ConnectID, 0, len(s.engines))
	for id := range s.engines {
		ids = append(ids, id)
	}
	return ids
}

// Close disposes every engine. The store and identity are untouched.
func (s *Service) Close() {
	s.mu.Lock()
	engines := s.engines
	s.engines = make(map[domain.ConnectID]*engine.Engine)
	s.mu.Unlock()
	for _, e := range engines {
		e.Close()
	}
}
