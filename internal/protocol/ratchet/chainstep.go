package ratchet

import (
	"maps"

	"github.com/sirupsen/logrus"

	"securechannel/internal/crypto"
	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/securemem"
	"securechannel/internal/util/memzero"
)

// StepKind tells which direction a chain step serves.
type StepKind uint8

const (
	Sender StepKind = iota
	Receiver
)

func (k StepKind) String() string {
	if k == Sender {
		return "sender"
	}
	return "receiver"
}

const (
	// DefaultCacheWindow is the number of derived keys a chain step retains.
	DefaultCacheWindow uint32 = 1000

	// MaxSkip bounds how far ahead of the current index one call may derive.
	MaxSkip uint32 = 1 << 14
)

var (
	infoMessageKey = []byte("msg")
	infoChainKey   = []byte("chain")
)

// DHKeys is a raw X25519 key pair handed to a chain step. A nil *DHKeys means
// no key pair; a non-nil value must carry both halves.
type DHKeys struct {
	Private []byte
	Public  []byte
}

func (d *DHKeys) validate(op string) error {
	if d == nil {
		return nil
	}
	if len(d.Private) != domain.KeySize || len(d.Public) != domain.KeySize {
		return failure.New(failure.ErrInvalidInput, op, "dh key pair must be %d+%d bytes, got %d+%d",
			domain.KeySize, domain.KeySize, len(d.Private), len(d.Public))
	}
	return nil
}

// ChainStep is one direction of the symmetric ratchet.
type ChainStep struct {
	kind         StepKind
	chainKey     *securemem.Buffer
	dhPrivate    *securemem.Buffer // nil when the step has no DH key pair
	dhPublic     domain.X25519Public
	currentIndex uint32
	cacheWindow  uint32

	// cache holds derived keys by index; order lists the indices in insertion
	// order, which is ascending within one chain.
	cache map[uint32]*MessageKey
	order []uint32

	// While holding, keys leaving the cache go to retired instead of being
	// disposed, so restore can put them back.
	holding bool
	retired []*MessageKey
}

// NewChainStep creates a chain step from a 32-byte chain key and an optional
// DH key pair. A cacheWindow of zero disables pruning.
func NewChainStep(kind StepKind, chainKey []byte, dh *DHKeys, cacheWindow uint32) (*ChainStep, error) {
	const op = "ratchet.NewChainStep"
	if len(chainKey) != domain.KeySize {
		return nil, failure.New(failure.ErrInvalidInput, op, "chain key is %d bytes", len(chainKey))
	}
	if err := dh.validate(op); err != nil {
		return nil, err
	}
	ck, err := securemem.FromBytes(chainKey)
	if err != nil {
		return nil, err
	}
	s := &ChainStep{
		kind:        kind,
		chainKey:    ck,
		cacheWindow: cacheWindow,
		cache:       make(map[uint32]*MessageKey),
	}
	if dh != nil {
		if s.dhPrivate, err = securemem.FromBytes(dh.Private); err != nil {
			ck.Dispose()
			return nil, err
		}
		copy(s.dhPublic[:], dh.Public)
	}
	return s, nil
}

// Kind returns the direction of the step.
func (s *ChainStep) Kind() StepKind { return s.kind }

// CurrentIndex returns the highest index derived on the current chain.
func (s *ChainStep) CurrentIndex() uint32 { return s.currentIndex }

// DHPublicKey returns the step's DH public key, if it holds a pair.
func (s *ChainStep) DHPublicKey() (domain.X25519Public, bool) {
	return s.dhPublic, s.dhPrivate != nil
}

// readDHPrivate returns a copy of the DH private key. The caller wipes it.
func (s *ChainStep) readDHPrivate() ([]byte, error) {
	if s.dhPrivate == nil {
		return nil, failure.New(failure.ErrNotInitialized, "ratchet.ChainStep", "%s step has no dh key pair", s.kind)
	}
	return s.dhPrivate.ReadBytes(domain.KeySize)
}

// Cached reports whether a key for index is in the cache.
func (s *ChainStep) Cached(index uint32) bool {
	_, ok := s.cache[index]
	return ok
}

// CachedIndices returns the cached indices in ascending order.
func (s *ChainStep) CachedIndices() []uint32 {
	return append([]uint32(nil), s.order...)
}

// GetOrDeriveKeyFor returns the key for targetIndex, deriving and caching every
// key between the current index and targetIndex. A past index that is no
// longer cached is rejected. The returned key stays owned by the step.
func (s *ChainStep) GetOrDeriveKeyFor(targetIndex uint32) (*MessageKey, error) {
	const op = "ratchet.GetOrDeriveKeyFor"
	if k, ok := s.cache[targetIndex]; ok {
		return k, nil
	}
	if targetIndex <= s.currentIndex {
		return nil, failure.New(failure.ErrInvalidInput, op, "index %d is behind current %d and not cached", targetIndex, s.currentIndex)
	}
	if targetIndex-s.currentIndex > MaxSkip {
		return nil, failure.New(failure.ErrInvalidInput, op, "index %d skips more than %d keys", targetIndex, MaxSkip)
	}

	ck, err := s.chainKey.ReadBytes(domain.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(ck)

	for idx := s.currentIndex + 1; idx <= targetIndex; idx++ {
		if err := s.stepOnce(idx, ck); err != nil {
			return nil, err
		}
		s.currentIndex = idx
	}
	s.pruneOldKeys()

	logrus.WithFields(logrus.Fields{
		"package": "ratchet",
		"op":      op,
		"step":    s.kind.String(),
		"index":   targetIndex,
		"cached":  len(s.order),
	}).Debug("derived message key")

	return s.cache[targetIndex], nil
}

// stepOnce derives the message key for idx from ck, caches it and replaces ck
// and the stored chain key with the next chain key.
func (s *ChainStep) stepOnce(idx uint32, ck []byte) error {
	mk, err := crypto.HKDFExpand(ck, infoMessageKey, domain.KeySize)
	if err != nil {
		return err
	}
	defer memzero.Zero(mk)
	next, err := crypto.HKDFExpand(ck, infoChainKey, domain.KeySize)
	if err != nil {
		return err
	}
	defer memzero.Zero(next)

	key, err := NewMessageKey(idx, mk)
	if err != nil {
		return err
	}
	if err := s.chainKey.Write(next); err != nil {
		key.Dispose()
		return err
	}
	copy(ck, next)
	s.cache[idx] = key
	s.order = append(s.order, idx)
	return nil
}

// SetCurrentIndex moves the current index forward and prunes the cache.
// Moving backwards is ignored.
func (s *ChainStep) SetCurrentIndex(index uint32) {
	if index <= s.currentIndex {
		return
	}
	s.currentIndex = index
	s.pruneOldKeys()
}

// UpdateKeysAfterDhRatchet installs a new chain key, resets the index and
// drops every cached key of the old chain. A non-nil dh replaces the DH key
// pair.
func (s *ChainStep) UpdateKeysAfterDhRatchet(newChainKey []byte, dh *DHKeys) error {
	const op = "ratchet.UpdateKeysAfterDhRatchet"
	if len(newChainKey) != domain.KeySize {
		return failure.New(failure.ErrInvalidInput, op, "chain key is %d bytes", len(newChainKey))
	}
	if err := dh.validate(op); err != nil {
		return err
	}
	if dh != nil {
		if s.dhPrivate == nil {
			buf, err := securemem.Allocate(domain.KeySize)
			if err != nil {
				return err
			}
			s.dhPrivate = buf
		}
		if err := s.dhPrivate.Write(dh.Private); err != nil {
			return err
		}
		copy(s.dhPublic[:], dh.Public)
	}
	if err := s.chainKey.Write(newChainKey); err != nil {
		return err
	}
	s.currentIndex = 0
	s.clearCache()
	return nil
}

// pruneOldKeys disposes cached keys below currentIndex-cacheWindow+1.
func (s *ChainStep) pruneOldKeys() {
	if s.cacheWindow == 0 || len(s.order) == 0 || s.currentIndex < s.cacheWindow {
		return
	}
	minIndex := s.currentIndex - s.cacheWindow + 1
	n := 0
	for _, idx := range s.order {
		if idx >= minIndex {
			break
		}
		s.drop(s.cache[idx])
		delete(s.cache, idx)
		n++
	}
	if n > 0 {
		s.order = append(s.order[:0], s.order[n:]...)
	}
}

func (s *ChainStep) clearCache() {
	for _, k := range s.cache {
		s.drop(k)
	}
	clear(s.cache)
	s.order = s.order[:0]
}

func (s *ChainStep) drop(k *MessageKey) {
	if s.holding {
		s.retired = append(s.retired, k)
		return
	}
	k.Dispose()
}

// stepMark is the part of a chain step one inbound message may change. The
// cached keys are shared with the step, not copied.
type stepMark struct {
	chainKey *securemem.Buffer
	index    uint32
	cache    map[uint32]*MessageKey
	order    []uint32
}

func (m *stepMark) has(idx uint32, k *MessageKey) bool {
	return m.cache[idx] == k
}

// mark records the current chain key, index and cache and starts holding
// dropped keys until restore or commit.
func (s *ChainStep) mark() (*stepMark, error) {
	ck, err := s.chainKey.Clone()
	if err != nil {
		return nil, err
	}
	s.holding = true
	return &stepMark{
		chainKey: ck,
		index:    s.currentIndex,
		cache:    maps.Clone(s.cache),
		order:    append([]uint32(nil), s.order...),
	}, nil
}

// restore returns the step to m and disposes every key derived since.
func (s *ChainStep) restore(m *stepMark) {
	for idx, k := range s.cache {
		if !m.has(idx, k) {
			k.Dispose()
		}
	}
	for _, k := range s.retired {
		if !m.has(k.Index(), k) {
			k.Dispose()
		}
	}
	s.chainKey.Dispose()
	s.chainKey = m.chainKey
	s.currentIndex = m.index
	s.cache, s.order = m.cache, m.order
	s.retired, s.holding = nil, false
}

// commit keeps the changes made since m and disposes the keys they dropped.
func (s *ChainStep) commit(m *stepMark) {
	for _, k := range s.retired {
		k.Dispose()
	}
	s.retired, s.holding = nil, false
	m.chainKey.Dispose()
}

// toState exports the chain key, DH pair and index. The cache is not exported.
func (s *ChainStep) toState() (domain.ChainStepState, error) {
	var st domain.ChainStepState
	st.CurrentIndex = s.currentIndex
	if err := s.chainKey.Read(st.ChainKey[:]); err != nil {
		return st, err
	}
	if s.dhPrivate != nil {
		kp := &domain.DHKeyPair{Public: s.dhPublic}
		if err := s.dhPrivate.Read(kp.Private[:]); err != nil {
			memzero.Zero(st.ChainKey[:])
			return st, err
		}
		st.DHKeyPair = kp
	}
	return st, nil
}

// chainStepFromState rebuilds a step from its persisted form. A stored DH pair
// must be consistent: its public half is recomputed from the private half.
func chainStepFromState(kind StepKind, st domain.ChainStepState, cacheWindow uint32) (*ChainStep, error) {
	var dh *DHKeys
	if st.DHKeyPair != nil {
		pub, err := crypto.PublicFromPrivate(st.DHKeyPair.Private[:])
		if err != nil {
			return nil, err
		}
		if !pub.Equal(st.DHKeyPair.Public) {
			return nil, failure.New(failure.ErrInvalidInput, "ratchet.FromState", "%s dh public key does not match its private key", kind)
		}
		dh = &DHKeys{Private: st.DHKeyPair.Private[:], Public: st.DHKeyPair.Public[:]}
	}
	s, err := NewChainStep(kind, st.ChainKey[:], dh, cacheWindow)
	if err != nil {
		return nil, err
	}
	s.currentIndex = st.CurrentIndex
	return s, nil
}

// Dispose wipes the cached keys, the chain key and the DH private key.
func (s *ChainStep) Dispose() {
	if s == nil {
		return
	}
	s.holding = false
	for _, k := range s.retired {
		k.Dispose()
	}
	s.retired = nil
	s.clearCache()
	s.chainKey.Dispose()
	s.dhPrivate.Dispose()
}
