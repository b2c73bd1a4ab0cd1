// internal/player/interface.go
package player

import (
	"errors"
	"time"
)

var (
	// ErrNoBackend is returned by Noop when asked to produce output.
	ErrNoBackend = errors.New("no audio backend available")

	// ErrUnknownHandle is returned for handles created by another backend.
	ErrUnknownHandle = errors.New("unknown playback handle")

	// ErrWindowOutOfRange is returned when a sprite window starts past the
	// end of its source.
	ErrWindowOutOfRange = errors.New("window starts past end of source")

	// ErrPanUnsupported is returned by backends that cannot pan.
	ErrPanUnsupported = errors.New("pan not supported")
)

// Handle is one playback resource created by a backend.
type Handle interface {
	// Position returns the output offset relative to the resource start.
	Position() time.Duration
}

// Params are the properties applied when output begins.
type Params struct {
	Offset time.Duration
	Volume float64 // 0..1, already scaled by master volume
	Pan    float64 // -1..1
}

// SignalKind identifies an asynchronous backend notification.
type SignalKind int

const (
	// SignalComplete reports that output reached the end of the resource.
	SignalComplete SignalKind = iota
	// SignalError reports that output failed after it had started.
	SignalError
	// SignalStalled reports that output can no longer make progress.
	SignalStalled
)

// String returns the signal name.
func (k SignalKind) String() string {
	switch k {
	case SignalComplete:
		return "complete"
	case SignalError:
		return "error"
	case SignalStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Signal is an asynchronous notification about a handle.
type Signal struct {
	Kind   SignalKind
	Handle Handle
	Err    error
}

// Interface defines the backend contract for dependency injection and testing.
//
// Begin may be called again on a handle whose output completed, to restart
// it (looping). Stop is final for a handle.
//
// The function given to Notify must never be called from inside one of the
// backend's own methods: the caller may hold locks while calling them.
type Interface interface {
	Create(src string, start, duration time.Duration) (Handle, error)
	Begin(h Handle, p Params) error
	Pause(h Handle)
	Resume(h Handle)
	Stop(h Handle)
	Seek(h Handle, pos time.Duration)
	SetVolume(h Handle, level float64)
	SetPan(h Handle, pan float64) error
	Unload(src string)
	Notify(fn func(Signal))
}

// Verify implementations at compile time.
var (
	_ Interface = (*Player)(nil)
	_ Interface = (*Mock)(nil)
	_ Interface = Noop{}
)
