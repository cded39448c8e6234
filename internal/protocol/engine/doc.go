// Package engine drives one secure channel: the three-step handshake
// (BeginHandshake, RespondToHandshake, CompleteHandshake) and, once complete,
// the production and consumption of cipher envelopes.
//
// An Engine is bound to one connection and to the local IdentityKeyMaterial.
// Handshake states move Init -> Pending -> Complete; any failure aborts the
// attempt without creating a session. Inbound messages are processed
// transactionally: a message that fails authentication leaves the ratchet
// exactly as it was.
package engine
