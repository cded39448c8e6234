package domain

import (
	interfaces "securechannel/internal/domain/interfaces"
	types "securechannel/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	ConnectID           = types.ConnectID
	SessionID           = types.SessionID
	Fingerprint         = types.Fingerprint
	HandshakeState      = types.HandshakeState
	ExchangeType        = types.ExchangeType
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
	Signature           = types.Signature
	OneTimePreKeyRecord = types.OneTimePreKeyRecord
	PublicKeyBundle     = types.PublicKeyBundle
	HandshakeMessage    = types.HandshakeMessage
	CipherEnvelope      = types.CipherEnvelope
	DHKeyPair           = types.DHKeyPair
	ChainStepState      = types.ChainStepState
	RatchetState        = types.RatchetState
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	RatchetStateStore = interfaces.RatchetStateStore
	TimeProvider      = interfaces.TimeProvider
	SystemTime        = interfaces.SystemTime
)

// Re-exported constants.
const (
	KeySize       = types.KeySize
	SignatureSize = types.SignatureSize
	NonceSize     = types.NonceSize
	TagSize       = types.TagSize

	HandshakeInit     = types.HandshakeInit
	HandshakePending  = types.HandshakePending
	HandshakeComplete = types.HandshakeComplete

	ExchangeEphemeralConnect    = types.ExchangeEphemeralConnect
	ExchangeDataCenterStreaming = types.ExchangeDataCenterStreaming
	ExchangeServerStreaming     = types.ExchangeServerStreaming
)
