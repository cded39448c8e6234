package ratchet

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechannel/internal/crypto"
	"securechannel/internal/domain"
	"securechannel/internal/failure"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newPair returns two finalized sessions sharing a random root key.
func newPair(t *testing.T, opts ...Option) (alice, bob *Session) {
	t.Helper()
	pa, err := New(1, true, opts...)
	require.NoError(t, err)
	pb, err := New(1, false, opts...)
	require.NoError(t, err)

	root := make([]byte, 32)
	_, err = rand.Read(root)
	require.NoError(t, err)

	aliceDH, bobDH := pa.InitialDHPublicKey(), pb.InitialDHPublicKey()
	alice, err = pa.Finalize(root, bobDH)
	require.NoError(t, err)
	bob, err = pb.Finalize(root, aliceDH)
	require.NoError(t, err)
	t.Cleanup(func() {
		alice.Dispose()
		bob.Dispose()
	})
	return alice, bob
}

type sealed struct {
	index uint32
	dh    *domain.X25519Public
	nonce [domain.NonceSize]byte
	ct    []byte
}

func send(t *testing.T, s *Session, msg []byte) (sealed, bool) {
	t.Helper()
	key, includeDH, err := s.PrepareNextSendMessage()
	require.NoError(t, err)
	defer key.Dispose()

	nonce, err := s.GenerateNextNonce()
	require.NoError(t, err)
	out := sealed{index: key.Index(), nonce: nonce}
	if includeDH {
		pub := s.SendingDHPublicKey()
		out.dh = &pub
	}
	require.NoError(t, key.Use(func(k []byte) error {
		out.ct, err = crypto.SealAESGCM(k, nonce[:], msg, nil)
		return err
	}))
	return out, includeDH
}

func receive(s *Session, m sealed) ([]byte, error) {
	return s.DecryptInbound(m.index, m.dh, func(key *MessageKey) ([]byte, error) {
		var pt []byte
		err := key.Use(func(k []byte) error {
			var err error
			pt, err = crypto.OpenAESGCM(k, m.nonce[:], m.ct, nil)
			return err
		})
		return pt, err
	})
}

func TestFinalize_TwiceFails(t *testing.T) {
	p, err := New(5, true)
	require.NoError(t, err)
	peer, err := New(5, false)
	require.NoError(t, err)
	defer peer.Dispose()

	s, err := p.Finalize(seed(1), peer.InitialDHPublicKey())
	require.NoError(t, err)
	defer s.Dispose()

	_, err = p.Finalize(seed(1), peer.InitialDHPublicKey())
	assert.ErrorIs(t, err, failure.ErrAlreadyFinalized)
}

func TestFinalize_KeepsInitialDHPublicKey(t *testing.T) {
	p, err := New(6, true)
	require.NoError(t, err)
	peer, err := New(6, false)
	require.NoError(t, err)
	defer peer.Dispose()

	announced := p.InitialDHPublicKey()
	require.False(t, announced.IsZero())

	s, err := p.Finalize(seed(2), peer.InitialDHPublicKey())
	require.NoError(t, err)
	defer s.Dispose()

	assert.Equal(t, announced, p.InitialDHPublicKey())
	assert.Equal(t, announced, s.SendingDHPublicKey())
}

func TestFinalize_Validation(t *testing.T) {
	p, err := New(5, true)
	require.NoError(t, err)
	defer p.Dispose()

	_, err = p.Finalize(make([]byte, 31), domain.X25519Public{1})
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
	_, err = p.Finalize(seed(1), domain.X25519Public{})
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}

func TestSession_RoundTripIncludingEmpty(t *testing.T) {
	alice, bob := newPair(t)

	for _, msg := range [][]byte{[]byte("hello"), {}, make([]byte, 4096), {0x00}} {
		m, _ := send(t, alice, msg)
		pt, err := receive(bob, m)
		require.NoError(t, err)
		assert.Equal(t, len(msg), len(pt))
		if len(msg) > 0 {
			assert.Equal(t, msg, pt)
		}
	}
}

func TestSession_DhRatchetCadence(t *testing.T) {
	alice, bob := newPair(t)

	for i := 1; i <= 25; i++ {
		m, includeDH := send(t, alice, []byte("x"))
		switch i {
		case 10, 20:
			assert.True(t, includeDH, "message %d", i)
			assert.NotNil(t, m.dh)
		default:
			assert.False(t, includeDH, "message %d", i)
			assert.Nil(t, m.dh)
		}
		assert.Equal(t, uint32(i), m.index, "ratchet index of message %d", i)

		_, err := receive(bob, m)
		require.NoError(t, err, "message %d", i)
	}
}

func TestSession_ConversationSurvivesRatchets(t *testing.T) {
	alice, bob := newPair(t)

	for round := 0; round < 6; round++ {
		for i := 0; i < 7; i++ {
			m, _ := send(t, alice, []byte("from alice"))
			pt, err := receive(bob, m)
			require.NoError(t, err, "round %d alice msg %d", round, i)
			assert.Equal(t, "from alice", string(pt))
		}
		for i := 0; i < 4; i++ {
			m, _ := send(t, bob, []byte("from bob"))
			pt, err := receive(alice, m)
			require.NoError(t, err, "round %d bob msg %d", round, i)
			assert.Equal(t, "from bob", string(pt))
		}
	}
}

func TestSession_ReplyAfterRatchetCarriesNewKey(t *testing.T) {
	alice, bob := newPair(t)

	var last sealed
	for i := 0; i < 10; i++ {
		last, _ = send(t, alice, []byte("m"))
		_, err := receive(bob, last)
		require.NoError(t, err)
	}
	require.NotNil(t, last.dh)
	assert.Equal(t, *last.dh, bob.PeerDHPublicKey())

	reply, includeDH := send(t, bob, []byte("reply"))
	assert.True(t, includeDH)
	assert.Equal(t, uint32(1), reply.index)

	pt, err := receive(alice, reply)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(pt))
}

func TestSession_OutOfOrderWithinChain(t *testing.T) {
	alice, bob := newPair(t)

	var msgs []sealed
	for i := 0; i < 5; i++ {
		m, _ := send(t, alice, []byte{byte(i)})
		msgs = append(msgs, m)
	}
	for _, i := range []int{4, 0, 2, 1, 3} {
		pt, err := receive(bob, msgs[i])
		require.NoError(t, err, "message %d", i)
		assert.Equal(t, []byte{byte(i)}, pt)
	}
	// Retransmission of an already derived index resolves from the cache.
	pt, err := receive(bob, msgs[2])
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, pt)
}

func TestSession_FailedDecryptDoesNotMutate(t *testing.T) {
	alice, bob := newPair(t)

	for i := 0; i < 3; i++ {
		m, _ := send(t, alice, []byte("ok"))
		_, err := receive(bob, m)
		require.NoError(t, err)
	}
	before, err := bob.ToState()
	require.NoError(t, err)

	m, _ := send(t, alice, []byte("tampered"))
	m.ct[0] ^= 0xff
	_, err = receive(bob, m)
	assert.ErrorIs(t, err, failure.ErrDecrypt)

	forged := m
	forged.index = 7
	fakeDH := domain.X25519Public{9, 9, 9}
	forged.dh = &fakeDH
	_, err = receive(bob, forged)
	assert.Error(t, err)

	after, err := bob.ToState()
	require.NoError(t, err)
	assert.Equal(t, before.RootKey, after.RootKey)
	assert.Equal(t, before.ReceivingStep, after.ReceivingStep)
	assert.Equal(t, before.PeerDHPublicKey, after.PeerDHPublicKey)
	assert.Equal(t, before.ReceivedNewDHKeyPending, after.ReceivedNewDHKeyPending)

	m.ct[0] ^= 0xff
	pt, err := receive(bob, m)
	require.NoError(t, err)
	assert.Equal(t, "tampered", string(pt))
}

func TestSession_NonceUniqueness(t *testing.T) {
	alice, _ := newPair(t)

	seen := make(map[[domain.NonceSize]byte]struct{})
	var prev uint32
	for i := 0; i < 500; i++ {
		n, err := alice.GenerateNextNonce()
		require.NoError(t, err)
		_, dup := seen[n]
		require.False(t, dup)
		seen[n] = struct{}{}

		ctr := binary.LittleEndian.Uint32(n[8:])
		assert.Greater(t, ctr, prev)
		prev = ctr
	}
}

func TestSession_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	alice, bob := newPair(t, WithTimeProvider(clock))

	m, _ := send(t, alice, []byte("fresh"))
	clock.Advance(25 * time.Hour)

	_, _, err := alice.PrepareNextSendMessage()
	assert.ErrorIs(t, err, failure.ErrExpired)
	_, err = bob.ProcessReceivedMessage(m.index, m.dh)
	assert.ErrorIs(t, err, failure.ErrExpired)
	_, err = receive(bob, m)
	assert.ErrorIs(t, err, failure.ErrExpired)
}

func TestSession_CustomTimeout(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	alice, _ := newPair(t, WithTimeProvider(clock), WithSessionTimeout(time.Hour))

	clock.Advance(59 * time.Minute)
	_, _ = send(t, alice, []byte("still fine"))
	clock.Advance(2 * time.Minute)
	_, _, err := alice.PrepareNextSendMessage()
	assert.ErrorIs(t, err, failure.ErrExpired)
}

func TestSession_DisposeBlocksUse(t *testing.T) {
	alice, _ := newPair(t)
	alice.Dispose()

	_, _, err := alice.PrepareNextSendMessage()
	assert.ErrorIs(t, err, failure.ErrObjectDisposed)
	_, err = alice.ToState()
	assert.ErrorIs(t, err, failure.ErrObjectDisposed)
}

func TestSession_StateRoundTrip(t *testing.T) {
	alice, bob := newPair(t)
	for i := 0; i < 12; i++ {
		m, _ := send(t, alice, []byte("before save"))
		_, err := receive(bob, m)
		require.NoError(t, err)
	}

	st, err := bob.ToState()
	require.NoError(t, err)
	restored, err := FromState(bob.ID(), st)
	st.Wipe()
	require.NoError(t, err)
	defer restored.Dispose()

	assert.Equal(t, bob.PeerDHPublicKey(), restored.PeerDHPublicKey())
	s1, r1 := bob.Indices()
	s2, r2 := restored.Indices()
	assert.Equal(t, s1, s2)
	assert.Equal(t, r1, r2)

	m, _ := send(t, alice, []byte("after restore"))
	pt, err := receive(restored, m)
	require.NoError(t, err)
	assert.Equal(t, "after restore", string(pt))

	reply, _ := send(t, restored, []byte("back"))
	pt, err = receive(alice, reply)
	require.NoError(t, err)
	assert.Equal(t, "back", string(pt))
}

func TestFromState_RequiresSendingKeyPair(t *testing.T) {
	_, err := FromState(1, domain.RatchetState{})
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}

func TestSession_ConcurrentSends(t *testing.T) {
	alice, _ := newPair(t)

	var wg sync.WaitGroup
	indices := make(chan uint32, 40)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				k, _, err := alice.PrepareNextSendMessage()
				if err != nil {
					t.Error(err)
					return
				}
				indices <- k.Index()
				k.Dispose()
			}
		}()
	}
	wg.Wait()
	close(indices)

	seen := map[uint32]bool{}
	for idx := range indices {
		assert.False(t, seen[idx], "index %d handed out twice", idx)
		seen[idx] = true
	}
	assert.Len(t, seen, 40)
}
