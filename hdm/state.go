package hdm

// State is a step of the binding protocol.
type State uint8

const (
	// StateIdle is the starting state. No key material is held.
	StateIdle State = iota

	// StateEntropyGenerated holds 64 bytes of fresh entropy.
	StateEntropyGenerated

	// StateHotDerived holds the hot key chain.
	StateHotDerived

	// StateColdDerived holds both chains and is waiting on the server.
	StateColdDerived

	// StateServerBound means the server accepted the binding.
	StateServerBound

	// StateComplete means the receiving addresses are provisioned.
	StateComplete

	// StateError absorbs every failure. Only a reset leaves it.
	StateError
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateEntropyGenerated:
		return "EntropyGenerated"
	case StateHotDerived:
		return "HotDerived"
	case StateColdDerived:
		return "ColdDerived"
	case StateServerBound:
		return "ServerBound"
	case StateComplete:
		return "Complete"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// IsTerminal returns true for the states a binding run ends in.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateError
}
