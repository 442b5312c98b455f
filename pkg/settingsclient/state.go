package settingsclient

// State is the lifecycle state of a Client.
type State string

const (
	// StateUninitialized is the state before the first successful load.
	StateUninitialized State = "uninitialized"
	// StateLoading indicates that the full settings set is being fetched.
	StateLoading State = "loading"
	// StateApplied indicates that the cache holds server-confirmed settings.
	StateApplied State = "applied"
	// StateUpdating indicates that a mutation round trip is in flight.
	StateUpdating State = "updating"
)

var validTransitions = map[State][]State{
	StateUninitialized: {
		StateLoading,
	},
	StateLoading: {
		StateApplied,
		StateUninitialized,
	},
	StateApplied: {
		StateLoading,
		StateUpdating,
	},
	StateUpdating: {
		StateApplied,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
// A failed load may return to wherever it started, so Loading → Applied covers reloads too.
func IsTransitionAllowed(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}
