package agent

// State is the responder's position within a single user turn.
type State int

const (
	StateReceived State = iota
	StateDeciding
	StateToolInvoked
	StateComposing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateDeciding:
		return "deciding"
	case StateToolInvoked:
		return "tool_invoked"
	case StateComposing:
		return "composing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
