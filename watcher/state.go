package watcher

import "fmt"

// State is the lifecycle phase of a Watcher.
type State int32

const (
	// Idle is the state before Run and after it returns.
	Idle State = iota
	// ScanningBacklog is the state while files already in the folder are processed.
	ScanningBacklog
	// Watching is the state while creation events are handled.
	Watching
	// ShuttingDown is the state while the event source is being released.
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ScanningBacklog:
		return "scanning-backlog"
	case Watching:
		return "watching"
	case ShuttingDown:
		return "shutting-down"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
