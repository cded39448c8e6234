package securemem

import (
	"crypto/subtle"
	"sync"

	"securechannel/internal/failure"
	"securechannel/internal/util/memzero"
)

// Buffer is a fixed-length secret region. The zero value is not usable; use
// Allocate or FromBytes.
type Buffer struct {
	mu     sync.RWMutex
	data   []byte
	length int
	closed bool
}

// Allocate returns a zero-filled buffer of n bytes. Zero-length buffers are
// valid and every access on them is a no-op.
func Allocate(n int) (*Buffer, error) {
	if n < 0 {
		return nil, failure.New(failure.ErrAllocationFailed, "securemem.Allocate", "negative length %d", n)
	}
	return &Buffer{data: make([]byte, n), length: n}, nil
}

// FromBytes allocates a buffer of len(src) bytes and copies src into it. The
// caller keeps ownership of src and should wipe it.
func FromBytes(src []byte) (*Buffer, error) {
	b, err := Allocate(len(src))
	if err != nil {
		return nil, err
	}
	copy(b.data, src)
	return b, nil
}

// Len reports the fixed length of the buffer, including after disposal.
func (b *Buffer) Len() int { return b.length }

// Write copies src into the start of the buffer.
func (b *Buffer) Write(src []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return failure.New(failure.ErrObjectDisposed, "securemem.Write", "buffer disposed")
	}
	if len(src) > b.length {
		return failure.New(failure.ErrBufferTooLarge, "securemem.Write", "%d bytes into %d-byte buffer", len(src), b.length)
	}
	copy(b.data, src)
	return nil
}

// Read copies the whole buffer into dst, which must hold at least Len bytes.
func (b *Buffer) Read(dst []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return failure.New(failure.ErrObjectDisposed, "securemem.Read", "buffer disposed")
	}
	if len(dst) < b.length {
		return failure.New(failure.ErrBufferTooSmall, "securemem.Read", "%d-byte destination for %d-byte buffer", len(dst), b.length)
	}
	copy(dst, b.data)
	return nil
}

// ReadBytes returns a fresh copy of the first n bytes. The caller owns the
// copy and must wipe it.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, failure.New(failure.ErrObjectDisposed, "securemem.ReadBytes", "buffer disposed")
	}
	if n < 0 || n > b.length {
		return nil, failure.New(failure.ErrBufferTooSmall, "securemem.ReadBytes", "requested %d of %d bytes", n, b.length)
	}
	out := make([]byte, n)
	copy(out, b.data[:n])
	return out, nil
}

// Use calls fn with the live contents while holding a read guard. fn must not
// retain or modify the slice.
func (b *Buffer) Use(fn func(secret []byte) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return failure.New(failure.ErrObjectDisposed, "securemem.Use", "buffer disposed")
	}
	return fn(b.data)
}

// Equal reports in constant time whether the contents equal other. A disposed
// buffer equals nothing.
func (b *Buffer) Equal(other []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed || len(other) != b.length {
		return false
	}
	return subtle.ConstantTimeCompare(b.data, other) == 1
}

// Clone returns an independent copy.
func (b *Buffer) Clone() (*Buffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, failure.New(failure.ErrObjectDisposed, "securemem.Clone", "buffer disposed")
	}
	return FromBytes(b.data)
}

// IsDisposed reports whether Dispose has run.
func (b *Buffer) IsDisposed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Dispose zeroes and releases the region. It blocks until in-flight accesses
// finish and is safe to call more than once.
func (b *Buffer) Dispose() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	memzero.Zero(b.data)
	b.data = nil
	b.closed = true
}
