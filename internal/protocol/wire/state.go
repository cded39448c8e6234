package wire

import (
	"time"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/util/memzero"
)

const stateVersion = 1

type dhKeyPair struct {
	Private []byte `cbor:"1,keyasint"`
	Public  []byte `cbor:"2,keyasint"`
}

type chainStep struct {
	ChainKey     []byte     `cbor:"1,keyasint"`
	DHKeyPair    *dhKeyPair `cbor:"2,keyasint,omitempty"`
	CurrentIndex uint32     `cbor:"3,keyasint"`
}

type ratchetState struct {
	Version                 int       `cbor:"0,keyasint"`
	IsInitiator             bool      `cbor:"1,keyasint"`
	CreatedAt               int64     `cbor:"2,keyasint"`
	NonceCounter            uint32    `cbor:"3,keyasint"`
	PeerBundle              *bundle   `cbor:"4,keyasint,omitempty"`
	PeerDHPublicKey         []byte    `cbor:"5,keyasint,omitempty"`
	IsFirstReceivingRatchet bool      `cbor:"6,keyasint"`
	ReceivedNewDHKeyPending bool      `cbor:"7,keyasint"`
	RootKey                 []byte    `cbor:"8,keyasint"`
	SendingStep             chainStep `cbor:"9,keyasint"`
	ReceivingStep           chainStep `cbor:"10,keyasint"`
}

func toChainStep(s domain.ChainStepState) chainStep {
	w := chainStep{ChainKey: append([]byte(nil), s.ChainKey[:]...), CurrentIndex: s.CurrentIndex}
	if s.DHKeyPair != nil {
		w.DHKeyPair = &dhKeyPair{
			Private: append([]byte(nil), s.DHKeyPair.Private[:]...),
			Public:  s.DHKeyPair.Public.Slice(),
		}
	}
	return w
}

func fromChainStep(op, name string, w chainStep) (domain.ChainStepState, error) {
	var (
		s   domain.ChainStepState
		err error
	)
	if s.ChainKey, err = fixed32(op, name+" chain key", w.ChainKey); err != nil {
		return s, err
	}
	s.CurrentIndex = w.CurrentIndex
	if w.DHKeyPair != nil {
		var kp domain.DHKeyPair
		if kp.Private, err = fixed32(op, name+" dh private key", w.DHKeyPair.Private); err != nil {
			return s, err
		}
		if kp.Public, err = fixed32(op, name+" dh public key", w.DHKeyPair.Public); err != nil {
			return s, err
		}
		s.DHKeyPair = &kp
	}
	return s, nil
}

// EncodeState serializes a persisted ratchet state. The output holds secret
// key material; callers seal it before it leaves memory.
func EncodeState(s domain.RatchetState) ([]byte, error) {
	w := ratchetState{
		Version:                 stateVersion,
		IsInitiator:             s.IsInitiator,
		CreatedAt:               s.CreatedAt.UnixNano(),
		NonceCounter:            s.NonceCounter,
		IsFirstReceivingRatchet: s.IsFirstReceivingRatchet,
		ReceivedNewDHKeyPending: s.ReceivedNewDHKeyPending,
		RootKey:                 append([]byte(nil), s.RootKey[:]...),
		SendingStep:             toChainStep(s.SendingStep),
		ReceivingStep:           toChainStep(s.ReceivingStep),
	}
	if s.PeerBundle != nil {
		b := toBundle(*s.PeerBundle)
		w.PeerBundle = &b
	}
	if !s.PeerDHPublicKey.IsZero() {
		w.PeerDHPublicKey = s.PeerDHPublicKey.Slice()
	}
	out, err := marshal("wire.EncodeState", w)
	wipeState(&w)
	return out, err
}

// DecodeState parses and validates a persisted ratchet state.
func DecodeState(data []byte) (domain.RatchetState, error) {
	const op = "wire.DecodeState"
	var w ratchetState
	if err := unmarshal(op, data, &w); err != nil {
		return domain.RatchetState{}, err
	}
	defer wipeState(&w)

	if w.Version != stateVersion {
		return domain.RatchetState{}, failure.New(failure.ErrDecode, op, "unsupported state version %d", w.Version)
	}
	s := domain.RatchetState{
		IsInitiator:             w.IsInitiator,
		CreatedAt:               time.Unix(0, w.CreatedAt).UTC(),
		NonceCounter:            w.NonceCounter,
		IsFirstReceivingRatchet: w.IsFirstReceivingRatchet,
		ReceivedNewDHKeyPending: w.ReceivedNewDHKeyPending,
	}
	var err error
	if w.PeerBundle != nil {
		b, err := fromBundle(op, *w.PeerBundle)
		if err != nil {
			return domain.RatchetState{}, err
		}
		s.PeerBundle = &b
	}
	if s.PeerDHPublicKey, err = optional32(op, "peer dh public key", w.PeerDHPublicKey); err != nil {
		return domain.RatchetState{}, err
	}
	if s.RootKey, err = fixed32(op, "root key", w.RootKey); err != nil {
		return domain.RatchetState{}, err
	}
	if s.SendingStep, err = fromChainStep(op, "sending", w.SendingStep); err != nil {
		s.Wipe()
		return domain.RatchetState{}, err
	}
	if s.ReceivingStep, err = fromChainStep(op, "receiving", w.ReceivingStep); err != nil {
		s.Wipe()
		return domain.RatchetState{}, err
	}
	return s, nil
}

func wipeState(w *ratchetState) {
	memzero.Zero(w.RootKey)
	for _, c := range []*chainStep{&w.SendingStep, &w.ReceivingStep} {
		memzero.Zero(c.ChainKey)
		if c.DHKeyPair != nil {
			memzero.Zero(c.DHKeyPair.Private)
		}
	}
}
