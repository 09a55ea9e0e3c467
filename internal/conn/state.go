package conn

// State is the lifecycle position of a Connection.
type State int

const (
	Connecting State = iota
	Open
	Closing
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool { return s == Closed || s == Failed }

// Event drives a State transition.
type Event int

const (
	EventOpened         Event = iota // dial succeeded
	EventDialFailed                  // dial returned an error
	EventCloseRequested              // local close
	EventCloseAcked                  // read side ended after a local close
	EventAbruptClose                 // read side ended without a local close
)

func (e Event) String() string {
	switch e {
	case EventOpened:
		return "opened"
	case EventDialFailed:
		return "dial-failed"
	case EventCloseRequested:
		return "close-requested"
	case EventCloseAcked:
		return "close-acked"
	case EventAbruptClose:
		return "abrupt-close"
	default:
		return "unknown"
	}
}

// Transition is the single transition function for every Connection. It
// returns the next state and whether the event is valid in s; invalid events
// leave the state unchanged.
func Transition(s State, e Event) (State, bool) {
	switch s {
	case Connecting:
		switch e {
		case EventOpened:
			return Open, true
		case EventDialFailed:
			return Failed, true
		case EventCloseRequested:
			// Nothing to hand-shake yet; the pending dial is discarded.
			return Closed, true
		}
	case Open:
		switch e {
		case EventCloseRequested:
			return Closing, true
		case EventAbruptClose:
			return Failed, true
		}
	case Closing:
		switch e {
		case EventCloseAcked, EventAbruptClose:
			return Closed, true
		}
	}
	return s, false
}
