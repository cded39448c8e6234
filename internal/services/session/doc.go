// Package session keeps the secure channels of one local identity.
//
// Service maps connect ids to protocol engines, runs their handshakes and
// message flow, and moves their ratchet state in and out of a
// domain.RatchetStateStore. It owns the engines it creates but not the
// identity key material.
package session
