package store

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/protocol/wire"
	"securechannel/internal/util/memzero"
)

const (
	ratchetDir    = "ratchet"
	ratchetSuffix = ".state"
)

// RatchetFileStore keeps one sealed ratchet state file per connect id under
// <home>/ratchet.
type RatchetFileStore struct {
	mu         sync.Mutex
	dir        string
	passphrase string
	params     ScryptParams
}

// StoreOption configures a RatchetFileStore.
type StoreOption func(*RatchetFileStore)

// WithScryptParams overrides the passphrase KDF cost.
func WithScryptParams(p ScryptParams) StoreOption {
	return func(s *RatchetFileStore) { s.params = p }
}

// NewRatchetFileStore returns a store rooted at home that seals states with
// passphrase.
func NewRatchetFileStore(home, passphrase string, opts ...StoreOption) *RatchetFileStore {
	s := &RatchetFileStore{
		dir:        filepath.Join(home, ratchetDir),
		passphrase: passphrase,
		params:     DefaultScryptParams,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RatchetFileStore) path(id domain.ConnectID) string {
	return filepath.Join(s.dir, strconv.FormatUint(uint64(id), 10)+ratchetSuffix)
}

func label(id domain.ConnectID) []byte {
	return []byte("ratchet-state/" + strconv.FormatUint(uint64(id), 10))
}

// SaveRatchetState seals and writes state for id, replacing any previous one.
func (s *RatchetFileStore) SaveRatchetState(id domain.ConnectID, state domain.RatchetState) error {
	const op = "store.SaveRatchetState"
	raw, err := wire.EncodeState(state)
	if err != nil {
		return err
	}
	defer memzero.Zero(raw)

	sealed, err := seal(s.passphrase, label(id), raw, s.params)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFile(s.path(id), sealed, 0o600); err != nil {
		return failure.Wrap(failure.ErrUnexpected, op, err)
	}
	logrus.WithFields(logrus.Fields{
		"package":    "store",
		"op":         op,
		"connect_id": id,
	}).Debug("ratchet state saved")
	return nil
}

// LoadRatchetState reads and opens the state for id. ok is false when no
// state was saved.
func (s *RatchetFileStore) LoadRatchetState(id domain.ConnectID) (domain.RatchetState, bool, error) {
	const op = "store.LoadRatchetState"
	s.mu.Lock()
	b, err := readFile(s.path(id))
	s.mu.Unlock()
	if err != nil {
		return domain.RatchetState{}, false, failure.Wrap(failure.ErrUnexpected, op, err)
	}
	if b == nil {
		return domain.RatchetState{}, false, nil
	}

	raw, err := open(s.passphrase, label(id), b)
	if err != nil {
		return domain.RatchetState{}, false, err
	}
	defer memzero.Zero(raw)
	st, err := wire.DecodeState(raw)
	if err != nil {
		return domain.RatchetState{}, false, err
	}
	return st, true, nil
}

// DeleteRatchetState removes the state for id. Deleting a missing state is
// not an error.
func (s *RatchetFileStore) DeleteRatchetState(id domain.ConnectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := removeFile(s.path(id)); err != nil {
		return failure.Wrap(failure.ErrUnexpected, "store.DeleteRatchetState", err)
	}
	return nil
}

// ListConnectIDs returns the ids with a saved state, in ascending order.
func (s *RatchetFileStore) ListConnectIDs() ([]domain.ConnectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, failure.Wrap(failure.ErrUnexpected, "store.ListConnectIDs", err)
	}
	var ids []domain.ConnectID
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ratchetSuffix)
		if !ok || e.IsDir() {
			continue
		}
		n, err := strconv.ParseUint(name, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, domain.ConnectID(n))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Compile-time assertion that RatchetFileStore implements domain.RatchetStateStore.
var _ domain.RatchetStateStore = (*RatchetFileStore)(nil)
