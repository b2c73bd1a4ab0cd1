package player

import "time"

// Noop is the backend used when no audio output is available. Every
// instance it is asked to start fails with ErrNoBackend.
type Noop struct{}

type noopHandle struct{}

func (noopHandle) Position() time.Duration { return 0 }

func (Noop) Create(string, time.Duration, time.Duration) (Handle, error) {
	return &noopHandle{}, nil
}

func (Noop) Begin(Handle, Params) error { return ErrNoBackend }

func (Noop) Pause(Handle) {}

func (Noop) Resume(Handle) {}

func (Noop) Stop(Handle) {}

func (Noop) Seek(Handle, time.Duration) {}

func (Noop) SetVolume(Handle, float64) {}

func (Noop) SetPan(Handle, float64) error { return nil }

func (Noop) Unload(string) {}

func (Noop) Notify(func(Signal)) {}
