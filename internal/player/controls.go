package player

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

// Begin starts (or restarts) output of the handle at p.Offset.
func (p *Player) Begin(h Handle, params Params) error {
	v, err := p.voice(h)
	if err != nil {
		return err
	}

	speaker.Lock()
	if v.stopped {
		speaker.Unlock()
		return fmt.Errorf("%s: handle already stopped", v.src)
	}
	offset := min(v.format.SampleRate.N(max(params.Offset, 0)), v.seg.Len())
	if err := v.seg.Seek(offset); err != nil {
		speaker.Unlock()
		return err
	}
	v.gen++
	gen := v.gen
	v.ctrl = &beep.Ctrl{Streamer: v.seg, Paused: false}
	v.pan = &effects.Pan{Streamer: v.ctrl, Pan: params.Pan}
	v.volume = &effects.Volume{
		Streamer: v.pan,
		Base:     2,
		Volume:   levelToVolume(params.Volume),
		Silent:   params.Volume <= 0,
	}
	out := &tail{s: v.volume, done: func(err error) { p.finished(v, gen, err) }}
	speaker.Unlock()

	speaker.Play(out)
	return nil
}

// finished runs on the speaker goroutine with the speaker lock held.
func (p *Player) finished(v *voice, gen int, err error) {
	if v.stopped || v.gen != gen {
		return
	}
	kind := SignalComplete
	if err != nil {
		kind = SignalError
	}
	go p.emit(Signal{Kind: kind, Handle: v, Err: err})
}

// Pause pauses output.
func (p *Player) Pause(h Handle) {
	p.withCtrl(h, func(v *voice) { v.ctrl.Paused = true })
}

// Resume resumes paused output.
func (p *Player) Resume(h Handle) {
	p.withCtrl(h, func(v *voice) { v.ctrl.Paused = false })
}

// Stop halts output for good. The streamer is detached so the mixer drops it.
func (p *Player) Stop(h Handle) {
	v, err := p.voice(h)
	if err != nil {
		return
	}
	speaker.Lock()
	defer speaker.Unlock()
	v.stopped = true
	if v.ctrl != nil {
		v.ctrl.Streamer = nil
	}
}

// Seek moves the output position within the window.
func (p *Player) Seek(h Handle, pos time.Duration) {
	v, err := p.voice(h)
	if err != nil {
		return
	}
	speaker.Lock()
	defer speaker.Unlock()
	n := min(v.format.SampleRate.N(max(pos, 0)), v.seg.Len())
	_ = v.seg.Seek(n)
}

func (p *Player) withCtrl(h Handle, fn func(v *voice)) {
	v, err := p.voice(h)
	if err != nil {
		return
	}
	speaker.Lock()
	defer speaker.Unlock()
	if v.ctrl == nil || v.stopped {
		return
	}
	fn(v)
}

func (p *Player) voice(h Handle) (*voice, error) {
	v, ok := h.(*voice)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownHandle, h)
	}
	return v, nil
}
