// Package instance tracks the lifecycle of a single playback request.
package instance

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// LoopForever is the loop count that never runs out.
const LoopForever = -1

var (
	// ErrInvalidTransition is returned when a transition is not allowed
	// from the instance's current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrAlreadyBound is returned when an instance is bound to a second owner.
	ErrAlreadyBound = errors.New("instance already occupies a channel slot")

	// ErrDetached is returned by control requests on an instance no
	// service routes.
	ErrDetached = errors.New("instance is not attached to a playback service")
)

// Window bounds playback to a sub-range of the source (an audio sprite).
// A zero Duration means "until the end of the source".
type Window struct {
	Start    time.Duration
	Duration time.Duration
}

// IsZero returns true if the window covers the whole source.
func (w Window) IsZero() bool {
	return w.Start == 0 && w.Duration == 0
}

// Playhead reports the live output position of a backend resource.
type Playhead interface {
	Position() time.Duration
}

// Owner is the admission set an instance occupies while active.
type Owner interface {
	Remove(l *Lifecycle) bool
}

// Controller carries out caller requests on an instance, keeping its
// backend resource and admission slot in step with the state.
type Controller interface {
	Stop(inst *Instance) error
	Pause(inst *Instance) error
	Resume(inst *Instance) error
	SetVolume(inst *Instance, level float64) error
	SetPan(inst *Instance, pan float64) error
	SetPosition(inst *Instance, pos time.Duration) error
}

// Instance is one request to play a source, as handed to callers.
//
// Its readers are safe from any goroutine. Control requests (Stop, Pause,
// SetVolume, ...) go through the Controller that created it; the state
// machine itself is only driven through the matching Lifecycle.
type Instance struct {
	id     int64
	src    string
	window Window

	mu       sync.RWMutex
	state    State
	paused   bool
	position time.Duration
	volume   float64
	pan      float64
	loop     int
	err      error
	playhead Playhead
	owner    Owner
	timer    *time.Timer
	relay    *Observers
	ctrl     Controller

	observers Observers
}

// Lifecycle is the owner side of an Instance: it performs the transitions.
// Its methods shadow the routed controls of the embedded Instance and
// never call back into a Controller.
//
// Transitions are safe to call from any goroutine, but owners that need
// several of them to appear atomic (admission, eviction) must serialize
// them themselves.
type Lifecycle struct {
	*Instance
}

// New creates an instance in StateInited at full volume and returns its
// lifecycle. Callers get the read side through Lifecycle.Instance.
func New(id int64, src string, w Window) *Lifecycle {
	return &Lifecycle{Instance: &Instance{
		id:     id,
		src:    src,
		window: w,
		state:  StateInited,
		volume: 1,
	}}
}

// ID returns the unique instance id.
func (i *Instance) ID() int64 { return i.id }

// Src returns the source key.
func (i *Instance) Src() string { return i.src }

// Window returns the sprite window.
func (i *Instance) Window() Window { return i.window }

// State returns the primary lifecycle state.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Paused returns true if the instance is paused while playing.
func (i *Instance) Paused() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.paused
}

// Position returns the playhead offset relative to the window start.
// While playing it follows the backend; otherwise it is the last known value.
func (i *Instance) Position() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.positionLocked()
}

func (i *Instance) positionLocked() time.Duration {
	if i.playhead != nil && i.state == StateSucceeded && !i.paused {
		return i.playhead.Position()
	}
	return i.position
}

// Volume returns the requested volume (0..1).
func (i *Instance) Volume() float64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.volume
}

// Pan returns the requested pan (-1..1).
func (i *Instance) Pan() float64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.pan
}

// Loops returns the remaining loop count (LoopForever, 0, or N).
func (i *Instance) Loops() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.loop
}

// Err returns the failure cause of a Failed instance.
func (i *Instance) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.err
}

// Pending returns true while a delayed start is scheduled.
func (i *Instance) Pending() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.timer != nil
}

// Subscribe returns a subscription to the instance's events.
func (i *Instance) Subscribe() *Subscription {
	return i.observers.Subscribe()
}

// Stop asks the controller to finish the instance.
func (i *Instance) Stop() error {
	c, err := i.controller()
	if err != nil {
		return err
	}
	return c.Stop(i)
}

// Pause asks the controller to pause the instance.
func (i *Instance) Pause() error {
	c, err := i.controller()
	if err != nil {
		return err
	}
	return c.Pause(i)
}

// Resume asks the controller to resume the instance.
func (i *Instance) Resume() error {
	c, err := i.controller()
	if err != nil {
		return err
	}
	return c.Resume(i)
}

// SetVolume asks the controller to change the volume (clamped to 0..1).
func (i *Instance) SetVolume(level float64) error {
	c, err := i.controller()
	if err != nil {
		return err
	}
	return c.SetVolume(i, level)
}

// SetPan asks the controller to change the pan (clamped to -1..1).
func (i *Instance) SetPan(pan float64) error {
	c, err := i.controller()
	if err != nil {
		return err
	}
	return c.SetPan(i, pan)
}

// SetPosition asks the controller to move the playhead.
func (i *Instance) SetPosition(pos time.Duration) error {
	c, err := i.controller()
	if err != nil {
		return err
	}
	return c.SetPosition(i, pos)
}

func (i *Instance) controller() (Controller, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.ctrl == nil {
		return nil, ErrDetached
	}
	return i.ctrl, nil
}

// Route makes c the controller of the instance's caller requests.
func (l *Lifecycle) Route(c Controller) {
	l.mu.Lock()
	l.ctrl = c
	l.mu.Unlock()
}

// Owner returns the channel the instance currently occupies, or nil.
func (l *Lifecycle) Owner() Owner {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.owner
}

// SetVolume clamps level to [0,1], stores it and returns the stored value.
func (l *Lifecycle) SetVolume(level float64) float64 {
	level = min(max(level, 0), 1)
	l.mu.Lock()
	l.volume = level
	l.mu.Unlock()
	return level
}

// SetPan clamps pan to [-1,1], stores it and returns the stored value.
func (l *Lifecycle) SetPan(pan float64) float64 {
	pan = min(max(pan, -1), 1)
	l.mu.Lock()
	l.pan = pan
	l.mu.Unlock()
	return pan
}

// SetLoop sets the remaining loop count. Anything below zero loops forever.
func (l *Lifecycle) SetLoop(n int) {
	if n < 0 {
		n = LoopForever
	}
	l.mu.Lock()
	l.loop = n
	l.mu.Unlock()
}

// SetPosition stores a new playhead offset, clamped to the window, and
// returns the stored value. It does not move a backend playhead.
func (l *Lifecycle) SetPosition(pos time.Duration) time.Duration {
	pos = max(pos, 0)
	if l.window.Duration > 0 {
		pos = min(pos, l.window.Duration)
	}
	l.mu.Lock()
	l.position = pos
	l.mu.Unlock()
	return pos
}

// Attach connects the instance to the backend resource reporting its position.
func (l *Lifecycle) Attach(p Playhead) {
	l.mu.Lock()
	l.playhead = p
	l.mu.Unlock()
}

// Bind records o as the owner of the instance's active slot.
func (l *Lifecycle) Bind(o Owner) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return fmt.Errorf("%w: bind in %s", ErrInvalidTransition, l.state)
	}
	if l.owner != nil && l.owner != o {
		return ErrAlreadyBound
	}
	l.owner = o
	return nil
}

// Release clears the owner if it is o.
func (l *Lifecycle) Release(o Owner) {
	l.mu.Lock()
	if l.owner == o {
		l.owner = nil
	}
	l.mu.Unlock()
}

// Schedule records the timer of a delayed start.
func (l *Lifecycle) Schedule(t *time.Timer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateInited {
		return fmt.Errorf("%w: schedule in %s", ErrInvalidTransition, l.state)
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = t
	return nil
}

// Unschedule forgets the delayed start timer, typically once it fired.
func (l *Lifecycle) Unschedule() {
	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()
}

// Forward copies every future event of the instance to o.
func (l *Lifecycle) Forward(o *Observers) {
	l.mu.Lock()
	l.relay = o
	l.mu.Unlock()
}

// Succeed moves Inited → Succeeded once the backend started output.
func (l *Lifecycle) Succeed() error {
	l.mu.Lock()
	if l.state != StateInited {
		defer l.mu.Unlock()
		return l.invalid(StateSucceeded)
	}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.state = StateSucceeded
	l.paused = false
	e := l.eventLocked(EventSucceeded)
	relay := l.relay
	l.mu.Unlock()

	l.publish(relay, e)
	return nil
}

// Pause freezes the playhead. Pausing twice is a no-op.
func (l *Lifecycle) Pause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.CanPause() {
		return fmt.Errorf("%w: pause in %s", ErrInvalidTransition, l.state)
	}
	if l.paused {
		return nil
	}
	l.position = l.positionLocked()
	l.paused = true
	return nil
}

// Resume unfreezes a paused instance. Resuming a playing instance is a no-op.
func (l *Lifecycle) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.state.CanPause() {
		return fmt.Errorf("%w: resume in %s", ErrInvalidTransition, l.state)
	}
	l.paused = false
	return nil
}

// Loop consumes one repeat at end-of-clip. The state stays Succeeded and
// the position goes back to the window start.
func (l *Lifecycle) Loop() error {
	l.mu.Lock()
	if l.state != StateSucceeded || l.loop == 0 {
		defer l.mu.Unlock()
		return fmt.Errorf("%w: loop in %s with %d loops left", ErrInvalidTransition, l.state, l.loop)
	}
	if l.loop > 0 {
		l.loop--
	}
	l.position = 0
	e := l.eventLocked(EventLoop)
	relay := l.relay
	l.mu.Unlock()

	l.publish(relay, e)
	return nil
}

// Complete moves Succeeded → Finished at the natural end of the clip.
// The position is left at the end of the clip.
func (l *Lifecycle) Complete() error {
	return l.terminate(StateFinished, EventComplete, nil, func() {
		l.position = l.positionLocked()
		if l.window.Duration > 0 {
			l.position = l.window.Duration
		}
	}, StateSucceeded)
}

// Stop moves the instance to Finished on explicit request and rewinds it.
// A pending delayed instance is cancelled without ever starting.
func (l *Lifecycle) Stop() error {
	return l.terminate(StateFinished, -1, nil, func() {
		l.position = 0
	}, StateSucceeded, StateInited)
}

// Interrupt moves the instance to Interrupted after eviction.
func (l *Lifecycle) Interrupt() error {
	l.mu.RLock()
	bound := l.owner != nil
	l.mu.RUnlock()
	if bound {
		return l.terminate(StateInterrupted, EventInterrupted, nil, l.freezeLocked, StateSucceeded, StateInited)
	}
	return l.terminate(StateInterrupted, EventInterrupted, nil, l.freezeLocked, StateSucceeded)
}

// Fail moves the instance to Failed with cause err.
func (l *Lifecycle) Fail(err error) error {
	return l.terminate(StateFailed, EventFailed, err, l.freezeLocked, StateInited, StateSucceeded)
}

func (i *Instance) freezeLocked() {
	i.position = i.positionLocked()
}

// terminate performs a terminal transition. The owner is released and
// observers are notified after the instance lock is dropped.
func (l *Lifecycle) terminate(to State, kind EventKind, cause error, mutate func(), from ...State) error {
	l.mu.Lock()
	if !slices.Contains(from, l.state) {
		defer l.mu.Unlock()
		return l.invalid(to)
	}

	mutate()
	l.state = to
	l.paused = false
	l.err = cause
	l.playhead = nil
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	owner := l.owner
	l.owner = nil
	var e Event
	if kind >= 0 {
		e = l.eventLocked(kind)
	}
	relay := l.relay
	l.mu.Unlock()

	if owner != nil {
		owner.Remove(l)
	}
	if kind >= 0 {
		l.publish(relay, e)
	}
	l.observers.Close()
	return nil
}

func (i *Instance) invalid(to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.state, to)
}

func (i *Instance) eventLocked(kind EventKind) Event {
	return Event{
		Kind:     kind,
		ID:       i.id,
		Src:      i.src,
		State:    i.state,
		Position: i.position,
		Err:      i.err,
	}
}

func (i *Instance) publish(relay *Observers, e Event) {
	i.observers.Publish(e)
	if relay != nil {
		relay.Publish(e)
	}
}
