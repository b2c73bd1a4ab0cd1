// internal/player/mock.go
package player

import (
	"fmt"
	"sync"
	"time"
)

// MockHandle is the handle created by Mock.
type MockHandle struct {
	Src      string
	Start    time.Duration
	Duration time.Duration

	mu       sync.Mutex
	position time.Duration
	begins   int
	paused   bool
	stopped  bool
	volume   float64
	pan      float64
}

// Position returns the scripted position.
func (h *MockHandle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

// SetPosition scripts the position reported to the service.
func (h *MockHandle) SetPosition(d time.Duration) {
	h.mu.Lock()
	h.position = d
	h.mu.Unlock()
}

// Begins returns how many times output was started on the handle.
func (h *MockHandle) Begins() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.begins
}

// Paused returns the pause flag.
func (h *MockHandle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// Stopped returns true once Stop was called.
func (h *MockHandle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Volume returns the last applied volume.
func (h *MockHandle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// Pan returns the last applied pan.
func (h *MockHandle) Pan() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pan
}

// Mock is a test double backend.
type Mock struct {
	mu        sync.Mutex
	notify    func(Signal)
	createErr error
	beginErr  error
	panErr    error
	handles   []*MockHandle
	calls     []string
	unloaded  []string
}

// NewMock creates a new mock backend for testing.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Create(src string, start, duration time.Duration) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "create "+src)
	if m.createErr != nil {
		return nil, m.createErr
	}
	h := &MockHandle{Src: src, Start: start, Duration: duration}
	m.handles = append(m.handles, h)
	return h, nil
}

func (m *Mock) Begin(h Handle, p Params) error {
	mh, err := m.handle(h)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.calls = append(m.calls, "begin "+mh.Src)
	beginErr := m.beginErr
	m.mu.Unlock()
	if beginErr != nil {
		return beginErr
	}

	mh.mu.Lock()
	defer mh.mu.Unlock()
	mh.begins++
	mh.position = p.Offset
	mh.volume = p.Volume
	mh.pan = p.Pan
	mh.paused = false
	return nil
}

func (m *Mock) Pause(h Handle) {
	m.update(h, "pause", func(mh *MockHandle) { mh.paused = true })
}

func (m *Mock) Resume(h Handle) {
	m.update(h, "resume", func(mh *MockHandle) { mh.paused = false })
}

func (m *Mock) Stop(h Handle) {
	m.update(h, "stop", func(mh *MockHandle) { mh.stopped = true })
}

func (m *Mock) Seek(h Handle, pos time.Duration) {
	m.update(h, "seek", func(mh *MockHandle) { mh.position = pos })
}

func (m *Mock) SetVolume(h Handle, level float64) {
	m.update(h, "volume", func(mh *MockHandle) { mh.volume = level })
}

func (m *Mock) SetPan(h Handle, pan float64) error {
	m.mu.Lock()
	panErr := m.panErr
	m.mu.Unlock()
	if panErr != nil {
		return panErr
	}
	m.update(h, "pan", func(mh *MockHandle) { mh.pan = pan })
	return nil
}

func (m *Mock) Unload(src string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unloaded = append(m.unloaded, src)
}

func (m *Mock) Notify(fn func(Signal)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = fn
}

func (m *Mock) handle(h Handle) (*MockHandle, error) {
	mh, ok := h.(*MockHandle)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownHandle, h)
	}
	return mh, nil
}

func (m *Mock) update(h Handle, op string, fn func(*MockHandle)) {
	mh, err := m.handle(h)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.calls = append(m.calls, op+" "+mh.Src)
	m.mu.Unlock()

	mh.mu.Lock()
	fn(mh)
	mh.mu.Unlock()
}

// Test helpers

func (m *Mock) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

func (m *Mock) SetBeginError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginErr = err
}

func (m *Mock) SetPanError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panErr = err
}

// Handles returns every handle created so far, oldest first.
func (m *Mock) Handles() []*MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockHandle(nil), m.handles...)
}

// Calls returns the log of backend operations, e.g. "begin boom.wav".
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Unloaded returns the sources passed to Unload.
func (m *Mock) Unloaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.unloaded...)
}

// SimulateComplete simulates the handle reaching the end of its resource.
func (m *Mock) SimulateComplete(h Handle) {
	m.send(Signal{Kind: SignalComplete, Handle: h})
}

// SimulateError simulates a failure after output started.
func (m *Mock) SimulateError(h Handle, err error) {
	m.send(Signal{Kind: SignalError, Handle: h, Err: err})
}

// SimulateStall simulates the handle stalling.
func (m *Mock) SimulateStall(h Handle) {
	m.send(Signal{Kind: SignalStalled, Handle: h})
}

func (m *Mock) send(s Signal) {
	m.mu.Lock()
	fn := m.notify
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
