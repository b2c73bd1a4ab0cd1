package playback

import (
	"time"

	"github.com/llehouerou/sfx/internal/channel"
	"github.com/llehouerou/sfx/internal/instance"
)

// PlayProps are optional play properties. A nil field falls back to the
// per-source default, then to the service-wide default, then to the
// built-in value.
type PlayProps struct {
	Interrupt *channel.Interrupt
	Delay     *time.Duration
	Offset    *time.Duration
	Loop      *int // instance.LoopForever loops until stopped
	Volume    *float64
	Pan       *float64

	// StartTime and Duration override the sprite window of the played key.
	StartTime *time.Duration
	Duration  *time.Duration
}

// Ptr returns a pointer to v, for filling PlayProps literals.
func Ptr[T any](v T) *T {
	return &v
}

// Or returns p with every nil field taken from fallback.
func (p PlayProps) Or(fallback PlayProps) PlayProps {
	if p.Interrupt == nil {
		p.Interrupt = fallback.Interrupt
	}
	if p.Delay == nil {
		p.Delay = fallback.Delay
	}
	if p.Offset == nil {
		p.Offset = fallback.Offset
	}
	if p.Loop == nil {
		p.Loop = fallback.Loop
	}
	if p.Volume == nil {
		p.Volume = fallback.Volume
	}
	if p.Pan == nil {
		p.Pan = fallback.Pan
	}
	if p.StartTime == nil {
		p.StartTime = fallback.StartTime
	}
	if p.Duration == nil {
		p.Duration = fallback.Duration
	}
	return p
}

// resolved are play properties with every default applied.
type resolved struct {
	interrupt channel.Interrupt
	delay     time.Duration
	offset    time.Duration
	loop      int
	volume    float64
	pan       float64
	window    instance.Window
}

// resolve applies the built-in values to p. window is the sprite window of
// the played key, overridden by StartTime/Duration.
func (p PlayProps) resolve(window instance.Window) resolved {
	r := resolved{
		interrupt: channel.InterruptNone,
		volume:    1,
		window:    window,
	}
	if p.Interrupt != nil {
		r.interrupt = *p.Interrupt
	}
	if p.Delay != nil {
		r.delay = max(*p.Delay, 0)
	}
	if p.Offset != nil {
		r.offset = max(*p.Offset, 0)
	}
	if p.Loop != nil {
		r.loop = *p.Loop
	}
	if p.Volume != nil {
		r.volume = *p.Volume
	}
	if p.Pan != nil {
		r.pan = *p.Pan
	}
	if p.StartTime != nil {
		r.window.Start = max(*p.StartTime, 0)
	}
	if p.Duration != nil {
		r.window.Duration = max(*p.Duration, 0)
	}
	return r
}
