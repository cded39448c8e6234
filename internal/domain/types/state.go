package types

import "time"

// DHKeyPair is the persisted form of an X25519 key pair.
type DHKeyPair struct {
	Private X25519Private
	Public  X25519Public
}

// ChainStepState is the persisted form of one ratchet direction. Cached message
// keys are never persisted.
type ChainStepState struct {
	ChainKey     [KeySize]byte
	DHKeyPair    *DHKeyPair
	CurrentIndex uint32
}

// RatchetState is the persisted form of a finalized ratchet session.
type RatchetState struct {
	IsInitiator             bool
	CreatedAt               time.Time
	NonceCounter            uint32
	PeerBundle              *PublicKeyBundle
	PeerDHPublicKey         X25519Public
	IsFirstReceivingRatchet bool
	ReceivedNewDHKeyPending bool
	RootKey                 [KeySize]byte
	SendingStep             ChainStepState
	ReceivingStep           ChainStepState
}

// Wipe zeroes every secret field of the state.
func (s *RatchetState) Wipe() {
	if s == nil {
		return
	}
	clear(s.RootKey[:])
	s.SendingStep.wipe()
	s.ReceivingStep.wipe()
}

func (c *ChainStepState) wipe() {
	clear(c.ChainKey[:])
	if c.DHKeyPair != nil {
		clear(c.DHKeyPair.Private[:])
	}
}
