package instance

import "time"

// EventKind identifies what happened to an instance.
type EventKind int

const (
	EventSucceeded EventKind = iota
	EventInterrupted
	EventFailed
	EventComplete
	EventLoop
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventSucceeded:
		return "succeeded"
	case EventInterrupted:
		return "interrupted"
	case EventFailed:
		return "failed"
	case EventComplete:
		return "complete"
	case EventLoop:
		return "loop"
	default:
		return "unknown"
	}
}

// Event is emitted on every observer-visible transition.
//
// Emitted by:
//   - Succeed: EventSucceeded
//   - Interrupt: EventInterrupted
//   - Fail: EventFailed (Err carries the cause)
//   - Complete: EventComplete
//   - Loop: EventLoop
//
// NOT emitted by Stop or Cancel. Those close the subscription's Done
// channel like every other terminal transition, so waiters still wake up.
type Event struct {
	Kind     EventKind
	ID       int64
	Src      string
	State    State
	Position time.Duration
	Err      error
}
