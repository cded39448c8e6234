package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/store"
)

var fastScrypt = store.WithScryptParams(store.ScryptParams{N: 1 << 10, R: 8, P: 1})

func sampleState() domain.RatchetState {
	peer := domain.PublicKeyBundle{
		IdentityEd25519: domain.Ed25519Public{1},
		IdentityX25519:  domain.X25519Public{2},
		SignedPreKeyID:  3,
		SignedPreKey:    domain.X25519Public{4},
	}
	return domain.RatchetState{
		IsInitiator:     true,
		CreatedAt:       time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		NonceCounter:    12,
		PeerBundle:      &peer,
		PeerDHPublicKey: domain.X25519Public{5},
		RootKey:         [32]byte{6},
		SendingStep: domain.ChainStepState{
			ChainKey:     [32]byte{7},
			DHKeyPair:    &domain.DHKeyPair{Private: domain.X25519Private{8}, Public: domain.X25519Public{9}},
			CurrentIndex: 11,
		},
		ReceivingStep: domain.ChainStepState{ChainKey: [32]byte{10}, CurrentIndex: 4},
	}
}

func TestRatchetFileStore_SaveLoad(t *testing.T) {
	var s domain.RatchetStateStore = store.NewRatchetFileStore(t.TempDir(), "pass", fastScrypt)

	_, ok, err := s.LoadRatchetState(1)
	require.NoError(t, err)
	assert.False(t, ok)

	want := sampleState()
	require.NoError(t, s.SaveRatchetState(1, want))

	got, ok, err := s.LoadRatchetState(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRatchetFileStore_WrongPassphrase(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, store.NewRatchetFileStore(home, "correct", fastScrypt).SaveRatchetState(7, sampleState()))

	_, _, err := store.NewRatchetFileStore(home, "wrong", fastScrypt).LoadRatchetState(7)
	assert.ErrorIs(t, err, failure.ErrDecrypt)
}

func TestRatchetFileStore_FileBoundToConnectID(t *testing.T) {
	home := t.TempDir()
	s := store.NewRatchetFileStore(home, "pass", fastScrypt)
	require.NoError(t, s.SaveRatchetState(1, sampleState()))

	dir := filepath.Join(home, "ratchet")
	b, err := os.ReadFile(filepath.Join(dir, "1.state"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2.state"), b, 0o600))

	_, _, err = s.LoadRatchetState(2)
	assert.ErrorIs(t, err, failure.ErrDecrypt)
}

func TestRatchetFileStore_ListAndDelete(t *testing.T) {
	home := t.TempDir()
	s := store.NewRatchetFileStore(home, "pass", fastScrypt)

	ids, err := s.ListConnectIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []domain.ConnectID{30, 4, 100} {
		require.NoError(t, s.SaveRatchetState(id, sampleState()))
	}
	require.NoError(t, os.WriteFile(filepath.Join(home, "ratchet", "notes.txt"), []byte("x"), 0o600))

	ids, err = s.ListConnectIDs()
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectID{4, 30, 100}, ids)

	require.NoError(t, s.DeleteRatchetState(30))
	require.NoError(t, s.DeleteRatchetState(30))
	ids, err = s.ListConnectIDs()
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectID{4, 100}, ids)
}

func TestRatchetFileStore_FileMode(t *testing.T) {
	home := t.TempDir()
	s := store.NewRatchetFileStore(home, "pass", fastScrypt)
	require.NoError(t, s.SaveRatchetState(5, sampleState()))

	fi, err := os.Stat(filepath.Join(home, "ratchet", "5.state"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestRatchetFileStore_CorruptFile(t *testing.T) {
	home := t.TempDir()
	s := store.NewRatchetFileStore(home, "pass", fastScrypt)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "ratchet"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, "ratchet", "9.state"), []byte("garbage"), 0o600))

	_, _, err := s.LoadRatchetState(9)
	assert.ErrorIs(t, err, failure.ErrDecode)
}

func TestRatchetFileStore_RejectsExcessiveKDFCost(t *testing.T) {
	home := t.TempDir()
	s := store.NewRatchetFileStore(home, "pass", fastScrypt)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "ratchet"), 0o700))

	for _, p := range []store.ScryptParams{
		{N: 1 << 30, R: 8, P: 1},
		{N: 1 << 10, R: 1 << 20, P: 1},
		{N: 1 << 10, R: 16, P: 16},
		{N: 1000, R: 8, P: 1},
	} {
		raw, err := cbor.Marshal(map[int]any{
			1: 1,
			2: make([]byte, 16),
			3: p.N,
			4: p.R,
			5: p.P,
			6: make([]byte, 64),
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(home, "ratchet", "5.state"), raw, 0o600))

		_, _, err = s.LoadRatchetState(5)
		assert.ErrorIs(t, err, failure.ErrDecode, "params %+v", p)
	}
}

func TestRatchetFileStore_RejectsBadScryptParams(t *testing.T) {
	s := store.NewRatchetFileStore(t.TempDir(), "pass", store.WithScryptParams(store.ScryptParams{N: 1 << 24, R: 8, P: 1}))
	assert.ErrorIs(t, s.SaveRatchetState(1, sampleState()), failure.ErrInvalidInput)
}
