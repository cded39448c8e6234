package interfaces

import domaintypes "securechannel/internal/domain/types"

// RatchetStateStore persists finalized ratchet sessions for the secure-storage
// collaborator. Implementations must treat the state as secret material.
type RatchetStateStore interface {
	SaveRatchetState(id domaintypes.ConnectID, state domaintypes.RatchetState) error
	LoadRatchetState(id domaintypes.ConnectID) (domaintypes.RatchetState, bool, error)
	DeleteRatchetState(id domaintypes.ConnectID) error
	ListConnectIDs() ([]domaintypes.ConnectID, error)
}
