package player

import "math"

// SetVolume sets the volume level (0.0 to 1.0) of a playing handle.
func (p *Player) SetVolume(h Handle, level float64) {
	level = min(max(level, 0), 1)
	p.withCtrl(h, func(v *voice) {
		if v.volume == nil {
			return
		}
		v.volume.Volume = levelToVolume(level)
		v.volume.Silent = level <= 0
	})
}

// SetPan sets the left/right balance (-1 to 1) of a playing handle.
func (p *Player) SetPan(h Handle, pan float64) error {
	if _, err := p.voice(h); err != nil {
		return err
	}
	pan = min(max(pan, -1), 1)
	p.withCtrl(h, func(v *voice) {
		if v.pan != nil {
			v.pan.Pan = pan
		}
	})
	return nil
}

// levelToVolume converts a 0.0-1.0 level to beep's Volume value.
// beep uses a logarithmic scale where Volume is in "decibels" with base 2.
// We map: 1.0 -> 0, 0.5 -> -1, 0.25 -> -2, 0 -> -10 (essentially silent)
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}
