package compile

import "fmt"

// Status is the scheduler's position in the compile cycle
type Status int

const (
	StatusIdle Status = iota
	StatusDebouncing
	StatusCompiling
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDebouncing:
		return "debouncing"
	case StatusCompiling:
		return "compiling"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StatusIdle
	case "debouncing":
		*s = StatusDebouncing
	case "compiling":
		*s = StatusCompiling
	case "error":
		*s = StatusError
	default:
		return fmt.Errorf("unknown compile status %q", text)
	}
	return nil
}

// Event drives a transition
type Event string

const (
	EventMutated    Event = "mutated"
	EventTimerFired Event = "timer_fired"
	EventSucceeded  Event = "succeeded"
	EventRefire     Event = "refire"
	EventFailed     Event = "failed"
	EventRecompile  Event = "recompile"
)

// transitions is the whole state machine. A pair that is missing is ignored.
var transitions = map[Status]map[Event]Status{
	StatusIdle: {
		EventMutated:   StatusDebouncing,
		EventRecompile: StatusCompiling,
	},
	StatusDebouncing: {
		EventMutated:    StatusDebouncing,
		EventTimerFired: StatusCompiling,
		EventRecompile:  StatusCompiling,
	},
	StatusCompiling: {
		EventMutated:   StatusCompiling,
		EventRecompile: StatusCompiling,
		EventSucceeded: StatusIdle,
		EventRefire:    StatusCompiling,
		EventFailed:    StatusError,
	},
	StatusError: {
		EventMutated:   StatusDebouncing,
		EventRecompile: StatusCompiling,
	},
}

// next looks up the transition for ev in state from
func next(from Status, ev Event) (Status, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}
