// Package domain defines the data models and contracts shared by the
// secure-channel core: key types, bundles, handshake messages, cipher envelopes
// and the persisted ratchet state. It contains plain types and interfaces only.
package domain
