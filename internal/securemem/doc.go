// Package securemem provides Buffer, an owned fixed-length region for secret
// bytes.
//
// Every read and write holds a guard on the buffer for the duration of the
// copy, and Dispose waits for in-flight accesses before zeroing the region and
// releasing it. After disposal every access fails with failure.ErrObjectDisposed.
//
// Buffers are allocated on the Go heap and wiped with memguard when disposed.
// Page-locked allocations are not used: the ratchet keeps up to a thousand
// cached message keys per chain and one locked page per key would exhaust
// RLIMIT_MEMLOCK on ordinary hosts.
package securemem
