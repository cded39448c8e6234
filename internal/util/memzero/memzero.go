package memzero

import "github.com/awnumar/memguard"

// Zero overwrites each of the given buffers with zeros.
func Zero(bufs ...[]byte) {
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		memguard.WipeBytes(b)
	}
}

// Zero32 wipes a fixed-size key held by value on the caller's stack or heap.
func Zero32(k *[32]byte) {
	if k == nil {
		return
	}
	memguard.WipeBytes(k[:])
}
