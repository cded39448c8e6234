package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/protocol/wire"
	"securechannel/internal/protocol/x3dh"
)

const connectID domain.ConnectID = 4242

func newIdentity(t *testing.T, opks int) *x3dh.IdentityKeyMaterial {
	t.Helper()
	id, err := x3dh.Create(opks)
	require.NoError(t, err)
	t.Cleanup(id.Dispose)
	return id
}

// handshake runs the three handshake steps between fresh engines.
func handshake(t *testing.T) (alice, bob *Engine, bobID *x3dh.IdentityKeyMaterial) {
	t.Helper()
	aliceID := newIdentity(t, 1)
	bobID = newIdentity(t, 1)
	alice, bob = New(aliceID), New(bobID)
	t.Cleanup(alice.Close)
	t.Cleanup(bob.Close)

	hello, err := alice.BeginHandshake(connectID, domain.ExchangeDataCenterStreaming)
	require.NoError(t, err)
	assert.Equal(t, domain.HandshakeInit, hello.State)
	assert.Equal(t, domain.HandshakeInit, alice.State())

	reply, err := bob.RespondToHandshake(connectID, hello)
	require.NoError(t, err)
	assert.Equal(t, domain.HandshakePending, reply.State)
	assert.Equal(t, domain.ExchangeDataCenterStreaming, reply.ExchangeType)

	require.NoError(t, alice.CompleteHandshake(reply))
	return alice, bob, bobID
}

func TestEndToEndScenario(t *testing.T) {
	alice, bob, _ := handshake(t)
	assert.Equal(t, domain.HandshakeComplete, alice.State())
	assert.Equal(t, domain.HandshakeComplete, bob.State())

	env, err := alice.ProduceOutboundMessage([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), env.RatchetIndex)
	assert.Nil(t, env.DHPublicKey)
	assert.NotZero(t, env.RequestID)

	pt, err := bob.ProcessInboundMessage(env)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))

	for i := 2; i <= 10; i++ {
		env, err = alice.ProduceOutboundMessage([]byte{byte(i)})
		require.NoError(t, err)
		if i < 10 {
			assert.Nil(t, env.DHPublicKey, "message %d", i)
		}
		pt, err = bob.ProcessInboundMessage(env)
		require.NoError(t, err, "message %d", i)
		assert.Equal(t, []byte{byte(i)}, pt)
	}
	require.NotNil(t, env.DHPublicKey, "10th envelope carries a dh key")
	assert.False(t, env.DHPublicKey.IsZero())

	reply, err := bob.ProduceOutboundMessage([]byte("hi alice"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), reply.RatchetIndex)
	require.NotNil(t, reply.DHPublicKey)

	pt, err = alice.ProcessInboundMessage(reply)
	require.NoError(t, err)
	assert.Equal(t, "hi alice", string(pt))
}

func TestEnvelopesSurviveWireEncoding(t *testing.T) {
	alice, bob, _ := handshake(t)

	for i := 0; i < 12; i++ {
		env, err := alice.ProduceOutboundMessage([]byte("over the wire"))
		require.NoError(t, err)
		raw, err := wire.EncodeEnvelope(env)
		require.NoError(t, err)
		decoded, err := wire.DecodeEnvelope(raw)
		require.NoError(t, err)

		pt, err := bob.ProcessInboundMessage(decoded)
		require.NoError(t, err)
		assert.Equal(t, "over the wire", string(pt))
	}
}

func TestHandshakeMessagesSurviveWireEncoding(t *testing.T) {
	alice, bob := New(newIdentity(t, 2)), New(newIdentity(t, 2))
	defer alice.Close()
	defer bob.Close()

	hello, err := alice.BeginHandshake(connectID, domain.ExchangeServerStreaming)
	require.NoError(t, err)
	raw, err := wire.EncodeHandshake(hello)
	require.NoError(t, err)
	hello, err = wire.DecodeHandshake(raw)
	require.NoError(t, err)

	reply, err := bob.RespondToHandshake(connectID, hello)
	require.NoError(t, err)
	raw, err = wire.EncodeHandshake(reply)
	require.NoError(t, err)
	reply, err = wire.DecodeHandshake(raw)
	require.NoError(t, err)

	require.NoError(t, alice.CompleteHandshake(reply))

	env, err := bob.ProduceOutboundMessage([]byte("responder first"))
	require.NoError(t, err)
	pt, err := alice.ProcessInboundMessage(env)
	require.NoError(t, err)
	assert.Equal(t, "responder first", string(pt))
}

func TestEmptyPlaintext(t *testing.T) {
	alice, bob, _ := handshake(t)

	env, err := alice.ProduceOutboundMessage(nil)
	require.NoError(t, err)
	assert.Len(t, env.Cipher, domain.TagSize)

	pt, err := bob.ProcessInboundMessage(env)
	require.NoError(t, err)
	assert.Empty(t, pt)
}

func TestTamperedMessageLeavesSessionUsable(t *testing.T) {
	alice, bob, _ := handshake(t)

	env, err := alice.ProduceOutboundMessage([]byte("genuine"))
	require.NoError(t, err)

	bad := env
	bad.Cipher = append([]byte(nil), env.Cipher...)
	bad.Cipher[len(bad.Cipher)-1] ^= 0x01
	_, err = bob.ProcessInboundMessage(bad)
	assert.ErrorIs(t, err, failure.ErrDecrypt)

	session, ok := bob.Session()
	require.True(t, ok)
	_, recv := session.Indices()
	assert.Equal(t, uint32(0), recv, "failed decrypt must not advance the index")

	pt, err := bob.ProcessInboundMessage(env)
	require.NoError(t, err)
	assert.Equal(t, "genuine", string(pt))
}

func TestReflectedMessageFails(t *testing.T) {
	alice, _, _ := handshake(t)

	env, err := alice.ProduceOutboundMessage([]byte("to bob"))
	require.NoError(t, err)
	_, err = alice.ProcessInboundMessage(env)
	assert.Error(t, err)
}

func TestResponderConsumesOneTimePreKey(t *testing.T) {
	_, _, bobID := handshake(t)
	assert.Empty(t, bobID.OneTimePreKeyIDs())
}

func TestHandshakeStateErrors(t *testing.T) {
	alice := New(newIdentity(t, 1))
	bob := New(newIdentity(t, 1))
	defer alice.Close()
	defer bob.Close()

	_, err := alice.ProduceOutboundMessage([]byte("too early"))
	assert.ErrorIs(t, err, failure.ErrNotInitialized)

	hello, err := alice.BeginHandshake(connectID, domain.ExchangeEphemeralConnect)
	require.NoError(t, err)
	_, err = alice.BeginHandshake(connectID, domain.ExchangeEphemeralConnect)
	assert.ErrorIs(t, err, failure.ErrHandshake)

	notInit := hello
	notInit.State = domain.HandshakePending
	_, err = bob.RespondToHandshake(connectID, notInit)
	assert.ErrorIs(t, err, failure.ErrHandshake)
	assert.Equal(t, domain.HandshakeInit, bob.State())
	_, ok := bob.Session()
	assert.False(t, ok, "failed handshake creates no session")

	assert.ErrorIs(t, alice.CompleteHandshake(hello), failure.ErrHandshake, "complete needs a Pending message")
	assert.ErrorIs(t, bob.CompleteHandshake(hello), failure.ErrHandshake, "responder cannot complete")
}

func TestRespondRejectsBadSignature(t *testing.T) {
	alice := New(newIdentity(t, 1))
	bob := New(newIdentity(t, 1))
	defer alice.Close()
	defer bob.Close()

	hello, err := alice.BeginHandshake(connectID, domain.ExchangeEphemeralConnect)
	require.NoError(t, err)

	b, err := wire.DecodeBundle(hello.Payload)
	require.NoError(t, err)
	b.SignedPreKeySignature[10] ^= 0xff
	hello.Payload, err = wire.EncodeBundle(b)
	require.NoError(t, err)

	_, err = bob.RespondToHandshake(connectID, hello)
	assert.ErrorIs(t, err, failure.ErrHandshake)
	_, ok := bob.Session()
	assert.False(t, ok)
}

func TestCompleteRejectsBadSignature(t *testing.T) {
	alice := New(newIdentity(t, 1))
	bob := New(newIdentity(t, 1))
	defer alice.Close()
	defer bob.Close()

	hello, err := alice.BeginHandshake(connectID, domain.ExchangeEphemeralConnect)
	require.NoError(t, err)
	reply, err := bob.RespondToHandshake(connectID, hello)
	require.NoError(t, err)

	b, err := wire.DecodeBundle(reply.Payload)
	require.NoError(t, err)
	b.SignedPreKey[0] ^= 0xff
	reply.Payload, err = wire.EncodeBundle(b)
	require.NoError(t, err)

	assert.ErrorIs(t, alice.CompleteHandshake(reply), failure.ErrHandshake)
	assert.Equal(t, domain.HandshakeInit, alice.State())
}

func TestSnapshotRestore(t *testing.T) {
	alice, bob, bobID := handshake(t)

	for i := 0; i < 11; i++ {
		env, err := alice.ProduceOutboundMessage([]byte("before"))
		require.NoError(t, err)
		_, err = bob.ProcessInboundMessage(env)
		require.NoError(t, err)
	}

	st, err := bob.Snapshot()
	require.NoError(t, err)
	bob.Close()

	restored, err := Restore(connectID, domain.ExchangeDataCenterStreaming, bobID, st)
	st.Wipe()
	require.NoError(t, err)
	defer restored.Close()
	assert.Equal(t, domain.HandshakeComplete, restored.State())
	assert.Equal(t, connectID, restored.ConnectID())

	env, err := alice.ProduceOutboundMessage([]byte("after"))
	require.NoError(t, err)
	pt, err := restored.ProcessInboundMessage(env)
	require.NoError(t, err)
	assert.Equal(t, "after", string(pt))

	reply, err := restored.ProduceOutboundMessage([]byte("reply"))
	require.NoError(t, err)
	pt, err = alice.ProcessInboundMessage(reply)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(pt))
}

func TestRestoreNeedsPeerBundle(t *testing.T) {
	_, err := Restore(connectID, domain.ExchangeEphemeralConnect, newIdentity(t, 0), domain.RatchetState{})
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}

func TestCloseDisposesSession(t *testing.T) {
	alice, _, _ := handshake(t)
	session, ok := alice.Session()
	require.True(t, ok)

	alice.Close()
	_, err := alice.ProduceOutboundMessage([]byte("x"))
	assert.ErrorIs(t, err, failure.ErrObjectDisposed)
	_, _, err = session.PrepareNextSendMessage()
	assert.ErrorIs(t, err, failure.ErrObjectDisposed)
}
