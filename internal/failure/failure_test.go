package failure

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesKindAndCause(t *testing.T) {
	err := Wrap(ErrDecode, "wire.DecodeBundle", io.ErrUnexpectedEOF)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "wire.DecodeBundle: decode failed: unexpected EOF", err.Error())
}

func TestWrap_NilCause(t *testing.T) {
	assert.NoError(t, Wrap(ErrDecode, "op", nil))
}

func TestNew_FormatsMessage(t *testing.T) {
	err := New(ErrInvalidInput, "ratchet.NewMessageKey", "want %d bytes, got %d", 32, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "ratchet.NewMessageKey: invalid input: want 32 bytes, got 5", err.Error())
}

func TestKind(t *testing.T) {
	assert.Equal(t, ErrExpired, Kind(New(ErrExpired, "op", "old")))
	assert.Equal(t, ErrGeneric, Kind(errors.New("plain")))
}
