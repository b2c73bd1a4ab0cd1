// internal/instance/state.go
package instance

// State is the primary lifecycle state of a playback instance.
//
//	┌──────────┐   backend started   ┌───────────┐
//	│  Inited  │ ───────────────────▶│ Succeeded │◀─┐ loop
//	└──────────┘                     └───────────┘──┘
//	  │      │                         │   │   │
//	  │      │ cancel          complete│   │   │ stall/error
//	  │      ▼                 or stop │   │   ▼
//	  │  ┌──────────┐                  │   │ ┌──────────┐
//	  │  │ Finished │◀─────────────────┘   │ │  Failed  │
//	  │  └──────────┘                      │ └──────────┘
//	  │ denied/start failure        evicted│      ▲
//	  └────────────────────────────────────┼──────┘
//	                                       ▼
//	                                ┌─────────────┐
//	                                │ Interrupted │
//	                                └─────────────┘
//
// Valid transitions:
//   - Inited    → Succeeded   (backend confirmed output)
//   - Inited    → Failed      (admission denied, backend refused to start)
//   - Inited    → Finished    (pending delayed start cancelled)
//   - Inited    → Interrupted (admitted but evicted before the backend confirmed)
//   - Succeeded → Finished    (natural end with no loops left, explicit stop)
//   - Succeeded → Interrupted (evicted to admit another instance)
//   - Succeeded → Failed      (backend stall or error after start)
//
// Pausing is tracked orthogonally and never changes the State value.
type State int

const (
	StateInited State = iota
	StateSucceeded
	StateFinished
	StateInterrupted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInited:
		return "Inited"
	case StateSucceeded:
		return "Succeeded"
	case StateFinished:
		return "Finished"
	case StateInterrupted:
		return "Interrupted"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal returns true once the instance can no longer produce output.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateInterrupted || s == StateFailed
}

// CanPause returns true if the state allows pausing and resuming.
func (s State) CanPause() bool {
	return s == StateSucceeded
}
