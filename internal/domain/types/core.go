package types

// ConnectID identifies one secure channel between this client and a peer.
type ConnectID uint32

// SessionID identifies a ratchet session within the process.
type SessionID uint32

// Fingerprint is a short identifier for public keys presented in logs and tools.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// HandshakeState is the position of a channel in the handshake state machine.
type HandshakeState uint8

const (
	HandshakeInit HandshakeState = iota
	HandshakePending
	HandshakeComplete
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeInit:
		return "init"
	case HandshakePending:
		return "pending"
	case HandshakeComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the defined states.
func (s HandshakeState) Valid() bool { return s <= HandshakeComplete }

// ExchangeType tells the peer what the channel will be used for.
type ExchangeType uint8

const (
	ExchangeEphemeralConnect ExchangeType = iota
	ExchangeDataCenterStreaming
	ExchangeServerStreaming
)

func (t ExchangeType) String() string {
	switch t {
	case ExchangeEphemeralConnect:
		return "ephemeral-connect"
	case ExchangeDataCenterStreaming:
		return "data-center-streaming"
	case ExchangeServerStreaming:
		return "server-streaming"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the defined exchange types.
func (t ExchangeType) Valid() bool { return t <= ExchangeServerStreaming }
