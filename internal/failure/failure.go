// Package failure defines the error taxonomy shared by the secure-channel core.
//
// Every fallible operation returns an error whose category can be tested with
// errors.Is against one of the sentinels below. The inner cause, when there is
// one, stays reachable through errors.Is / errors.As as well.
package failure

import (
	"errors"
	"fmt"
)

// Categories.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrDeriveKey      = errors.New("key derivation failed")
	ErrDecode         = errors.New("decode failed")
	ErrHandshake      = errors.New("handshake failed")
	ErrPeerPubKey     = errors.New("invalid peer public key")
	ErrObjectDisposed = errors.New("object disposed")
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrBufferTooLarge = errors.New("buffer too large")
	ErrExpired        = errors.New("session expired")
	ErrGeneric        = errors.New("operation failed")
	ErrUnexpected     = errors.New("unexpected failure")
)

// Operation-specific sentinels.
var (
	ErrAllocationFailed = errors.New("secure allocation failed")
	ErrKeyGeneration    = errors.New("key generation failed")
	ErrNotInitialized   = errors.New("session not initialized")
	ErrAlreadyFinalized = errors.New("session already finalized")
	ErrDecrypt          = errors.New("message authentication failed")
)

// Error carries the category, the failing operation and an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.Error()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the category and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind with a formatted message.
func New(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind preserving cause. A nil cause yields nil.
func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Kind reports the category of err, or ErrGeneric when err carries none of the
// known categories.
func Kind(err error) error {
	for _, k := range []error{
		ErrInvalidInput, ErrDeriveKey, ErrDecode, ErrHandshake, ErrPeerPubKey,
		ErrObjectDisposed, ErrBufferTooSmall, ErrBufferTooLarge, ErrExpired,
		ErrUnexpected,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrGeneric
}
