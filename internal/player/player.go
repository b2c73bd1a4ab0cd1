package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Player is the speaker backend. Every source is decoded once into a
// beep.Buffer and shared by all handles playing it.
type Player struct {
	mu      sync.Mutex
	buffers map[string]*beep.Buffer
	notify  func(Signal)
}

var (
	speakerInitialized bool
	speakerSampleRate  beep.SampleRate
)

// New creates a speaker backend. The speaker itself is initialized lazily
// with the sample rate of the first decoded source.
func New() *Player {
	return &Player{
		buffers: make(map[string]*beep.Buffer),
	}
}

// Create decodes src if needed and returns a handle bounded to the window
// [start, start+duration). A zero duration plays to the end of the source.
func (p *Player) Create(src string, start, duration time.Duration) (Handle, error) {
	buf, err := p.buffer(src)
	if err != nil {
		return nil, err
	}
	from, to, err := span(buf.Len(), buf.Format().SampleRate, start, duration)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return &voice{
		src:    src,
		format: buf.Format(),
		seg:    buf.Streamer(from, to),
	}, nil
}

// Unload drops the decoded buffer of src. Handles already created keep
// playing from their own reference.
func (p *Player) Unload(src string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.buffers, src)
}

// Notify registers the signal callback.
func (p *Player) Notify(fn func(Signal)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notify = fn
}

// CachedBytes returns the memory held by decoded sources.
func (p *Player) CachedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total int64
	for _, buf := range p.buffers {
		total += int64(buf.Len()) * int64(buf.Format().Width())
	}
	return total
}

// Cached returns the number of decoded sources.
func (p *Player) Cached() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffers)
}

func (p *Player) buffer(src string) (*beep.Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if buf, ok := p.buffers[src]; ok {
		return buf, nil
	}

	streamer, format, err := decodeFile(src)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	if !speakerInitialized {
		speakerSampleRate = format.SampleRate
		err = speaker.Init(speakerSampleRate, speakerSampleRate.N(time.Second/10))
		if err != nil {
			return nil, err
		}
		speakerInitialized = true
	}

	buf := load(streamer, format, speakerSampleRate)
	p.buffers[src] = buf
	return buf, nil
}

// emit delivers a signal outside of the speaker lock.
func (p *Player) emit(s Signal) {
	p.mu.Lock()
	fn := p.notify
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// span converts a time window into buffer sample offsets.
func span(length int, rate beep.SampleRate, start, duration time.Duration) (int, int, error) {
	from := rate.N(max(start, 0))
	if from >= length {
		return 0, 0, ErrWindowOutOfRange
	}
	to := length
	if duration > 0 {
		to = min(from+rate.N(duration), length)
	}
	return from, to, nil
}
