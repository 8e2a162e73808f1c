package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
)

const (
	EventStart    Event = "start"
	EventStop     Event = "stop"
	EventFinalize Event = "finalize"
)

// Transition applies one event to the recording lifecycle. Idle accepts only
// start, Recording accepts only stop, and Stopping accepts only finalize; any
// other pairing is rejected without changing state.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		if event == EventStart {
			return StateRecording, nil
		}
		return current, invalidTransition(current, event)
	case StateRecording:
		if event == EventStop {
			return StateStopping, nil
		}
		return current, invalidTransition(current, event)
	case StateStopping:
		if event == EventFinalize {
			return StateIdle, nil
		}
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
