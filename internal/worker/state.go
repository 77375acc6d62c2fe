package worker

// State is a lifecycle state of the Worker.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateServing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateServing:
		return "serving"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
