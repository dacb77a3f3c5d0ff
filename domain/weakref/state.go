package weakref

// State is the validity of a gate.
type State uint8

const (
	// Live gates allow weak registration and promotion.
	Live State = iota
	// Invalid is terminal. It is set once, when the last owning
	// reference is released.
	Invalid
)

func (s State) String() string {
	switch s {
	case Live:
		return "LIVE"
	case Invalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}
