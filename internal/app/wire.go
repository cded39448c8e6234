package app

import (
	"securechannel/internal/domain"
	"securechannel/internal/protocol/x3dh"
	"securechannel/internal/services/session"
	"securechannel/internal/store"
)

// Wire bundles the identity, store and session service of one local party.
type Wire struct {
	Config   Config
	Identity *x3dh.IdentityKeyMaterial
	Store    domain.RatchetStateStore
	Sessions *session.Service
}

// NewWire validates cfg and builds the dependency graph. Call Close when done.
func NewWire(cfg Config, storeOpts ...store.StoreOption) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	identity, err := x3dh.Create(cfg.OneTimeKeyCount)
	if err != nil {
		return nil, err
	}
	ratchetStore := store.NewRatchetFileStore(cfg.Home, cfg.Passphrase, storeOpts...)

	return &Wire{
		Config:   cfg,
		Identity: identity,
		Store:    ratchetStore,
		Sessions: session.New(identity, ratchetStore, cfg.RatchetOptions()...),
	}, nil
}

// Close disposes every channel and then the identity key material.
func (w *Wire) Close() {
	w.Sessions.Close()
	w.Identity.Dispose()
}
