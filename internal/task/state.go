package task

import "fmt"

// State is the lifecycle state of a download task.
type State int32

const (
	StateQueued State = iota
	StateDownloading
	StatePaused
	StateCompleted
	StateFailed
	StateCancelled
	StateExtracting
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "Queued"
	case StateDownloading:
		return "Downloading"
	case StatePaused:
		return "Paused"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	case StateExtracting:
		return "Extracting"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// Terminal reports whether no further progress applies to a task in this
// state. Failed counts as terminal until an explicit retry requeues it.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ParseState converts a wire string back into a State.
func ParseState(s string) (State, error) {
	switch s {
	case "Queued":
		return StateQueued, nil
	case "Downloading":
		return StateDownloading, nil
	case "Paused":
		return StatePaused, nil
	case "Completed":
		return StateCompleted, nil
	case "Failed":
		return StateFailed, nil
	case "Cancelled":
		return StateCancelled, nil
	case "Extracting":
		return StateExtracting, nil
	default:
		return StateQueued, fmt.Errorf("unknown task state %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so states serialize as
// their names in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}

	*s = parsed
	return nil
}
