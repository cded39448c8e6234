package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

func fill(b byte) (k [domain.KeySize]byte) {
	for i := range k {
		k[i] = b
	}
	return k
}

func sampleBundle() domain.PublicKeyBundle {
	var sig domain.Signature
	copy(sig[:], bytes.Repeat([]byte{0x55}, domain.SignatureSize))
	return domain.PublicKeyBundle{
		IdentityEd25519:       fill(1),
		IdentityX25519:        fill(2),
		SignedPreKeyID:        77,
		SignedPreKey:          fill(3),
		SignedPreKeySignature: sig,
		OneTimePreKeys: []domain.OneTimePreKeyRecord{
			{ID: 9, Pub: fill(4)},
			{ID: 10, Pub: fill(5)},
		},
		EphemeralX25519: fill(6),
	}
}

func TestBundle_RoundTrip(t *testing.T) {
	in := sampleBundle()
	raw, err := EncodeBundle(in)
	require.NoError(t, err)

	out, err := DecodeBundle(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.True(t, out.HasEphemeral())
}

func TestBundle_WithoutEphemeral(t *testing.T) {
	in := sampleBundle()
	in.EphemeralX25519 = domain.X25519Public{}
	in.OneTimePreKeys = nil

	raw, err := EncodeBundle(in)
	require.NoError(t, err)
	out, err := DecodeBundle(raw)
	require.NoError(t, err)
	assert.False(t, out.HasEphemeral())
	assert.Empty(t, out.OneTimePreKeys)
}

func TestDecodeBundle_RejectsShortFields(t *testing.T) {
	w := toBundle(sampleBundle())
	w.SignedPreKey = w.SignedPreKey[:31]
	raw, err := encMode.Marshal(w)
	require.NoError(t, err)

	_, err = DecodeBundle(raw)
	assert.ErrorIs(t, err, failure.ErrDecode)

	w = toBundle(sampleBundle())
	w.SignedPreKeySignature = w.SignedPreKeySignature[:10]
	raw, err = encMode.Marshal(w)
	require.NoError(t, err)
	_, err = DecodeBundle(raw)
	assert.ErrorIs(t, err, failure.ErrDecode)
}

func TestDecodeBundle_RejectsDuplicatePreKeyIDs(t *testing.T) {
	in := sampleBundle()
	in.OneTimePreKeys[1].ID = in.OneTimePreKeys[0].ID
	raw, err := EncodeBundle(in)
	require.NoError(t, err)

	_, err = DecodeBundle(raw)
	assert.ErrorIs(t, err, failure.ErrDecode)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := DecodeBundle([]byte{0xff, 0x00, 0x13})
	assert.ErrorIs(t, err, failure.ErrDecode)
	_, err = DecodeEnvelope(nil)
	assert.ErrorIs(t, err, failure.ErrDecode)
	_, err = DecodeHandshake([]byte("not cbor"))
	assert.ErrorIs(t, err, failure.ErrDecode)
}

func TestHandshake_RoundTrip(t *testing.T) {
	payload, err := EncodeBundle(sampleBundle())
	require.NoError(t, err)
	in := domain.HandshakeMessage{
		State:              domain.HandshakePending,
		ExchangeType:       domain.ExchangeDataCenterStreaming,
		Payload:            payload,
		InitialDHPublicKey: fill(8),
	}
	raw, err := EncodeHandshake(in)
	require.NoError(t, err)

	out, err := DecodeHandshake(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeHandshake_RejectsUnknownState(t *testing.T) {
	payload, err := EncodeBundle(sampleBundle())
	require.NoError(t, err)
	raw, err := encMode.Marshal(handshakeMessage{State: 9, Payload: payload, InitialDHPublicKey: make([]byte, 32)})
	require.NoError(t, err)

	_, err = DecodeHandshake(raw)
	assert.ErrorIs(t, err, failure.ErrDecode)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	dh := domain.X25519Public(fill(7))
	in := domain.CipherEnvelope{
		RequestID:    42,
		Nonce:        [domain.NonceSize]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		RatchetIndex: 10,
		Cipher:       bytes.Repeat([]byte{0xaa}, 40),
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC),
		DHPublicKey:  &dh,
	}
	raw, err := EncodeEnvelope(in)
	require.NoError(t, err)

	out, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	in.DHPublicKey = nil
	raw, err = EncodeEnvelope(in)
	require.NoError(t, err)
	out, err = DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Nil(t, out.DHPublicKey)
}

func TestDecodeEnvelope_Validation(t *testing.T) {
	base := envelope{RequestID: 1, Nonce: make([]byte, 12), Cipher: make([]byte, 16)}

	cases := map[string]func(e *envelope){
		"zero request id": func(e *envelope) { e.RequestID = 0 },
		"short nonce":     func(e *envelope) { e.Nonce = make([]byte, 11) },
		"missing tag":     func(e *envelope) { e.Cipher = make([]byte, 15) },
		"short dh key":    func(e *envelope) { e.DHPublicKey = make([]byte, 31) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := base
			mutate(&e)
			raw, err := encMode.Marshal(e)
			require.NoError(t, err)
			_, err = DecodeEnvelope(raw)
			assert.ErrorIs(t, err, failure.ErrDecode)
		})
	}
}

func TestState_RoundTrip(t *testing.T) {
	peer := sampleBundle()
	in := domain.RatchetState{
		IsInitiator:             true,
		CreatedAt:               time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		NonceCounter:            17,
		PeerBundle:              &peer,
		PeerDHPublicKey:         fill(9),
		IsFirstReceivingRatchet: false,
		ReceivedNewDHKeyPending: true,
		RootKey:                 fill(10),
		SendingStep: domain.ChainStepState{
			ChainKey:     fill(11),
			DHKeyPair:    &domain.DHKeyPair{Private: fill(12), Public: fill(13)},
			CurrentIndex: 4,
		},
		ReceivingStep: domain.ChainStepState{
			ChainKey:     fill(14),
			CurrentIndex: 3,
		},
	}
	raw, err := EncodeState(in)
	require.NoError(t, err)

	out, err := DecodeState(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeState_RejectsWrongVersion(t *testing.T) {
	raw, err := encMode.Marshal(ratchetState{Version: 99, RootKey: make([]byte, 32)})
	require.NoError(t, err)

	_, err = DecodeState(raw)
	assert.ErrorIs(t, err, failure.ErrDecode)
}
