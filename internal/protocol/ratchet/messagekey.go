package ratchet

import (
	"securechannel/internal/domain"
	"securechannel/internal/failure"
	"securechannel/internal/securemem"
)

// MessageKey is a single-use AEAD key bound to a ratchet index.
type MessageKey struct {
	index uint32
	buf   *securemem.Buffer
}

// NewMessageKey copies material into a secure buffer. material must be
// exactly domain.KeySize bytes; the caller still owns and wipes it.
func NewMessageKey(index uint32, material []byte) (*MessageKey, error) {
	if len(material) != domain.KeySize {
		return nil, failure.New(failure.ErrInvalidInput, "ratchet.NewMessageKey", "key material is %d bytes", len(material))
	}
	buf, err := securemem.FromBytes(material)
	if err != nil {
		return nil, err
	}
	return &MessageKey{index: index, buf: buf}, nil
}

// Index returns the ratchet position of the key.
func (k *MessageKey) Index() uint32 { return k.index }

// ReadKeyMaterial copies the key into dst.
func (k *MessageKey) ReadKeyMaterial(dst []byte) error {
	return k.buf.Read(dst)
}

// Use runs fn with the key bytes under the buffer's read guard.
func (k *MessageKey) Use(fn func(key []byte) error) error {
	return k.buf.Use(fn)
}

// Clone returns an independent copy with the same index.
func (k *MessageKey) Clone() (*MessageKey, error) {
	buf, err := k.buf.Clone()
	if err != nil {
		return nil, err
	}
	return &MessageKey{index: k.index, buf: buf}, nil
}

// Equal reports whether both keys are usable and hold the same index.
func (k *MessageKey) Equal(o *MessageKey) bool {
	if k == nil || o == nil || k.IsDisposed() || o.IsDisposed() {
		return false
	}
	return k.index == o.index
}

// IsDisposed reports whether the key has been wiped.
func (k *MessageKey) IsDisposed() bool { return k.buf.IsDisposed() }

// Dispose wipes the key. Safe to call more than once.
func (k *MessageKey) Dispose() {
	if k == nil {
		return
	}
	k.buf.Dispose()
}
