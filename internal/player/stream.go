package player

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

const (
	extMP3  = ".mp3"
	extWAV  = ".wav"
	extFLAC = ".flac"
	extOGG  = ".ogg"
)

// ErrUnsupportedFormat is returned for files the speaker backend cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported format")

// decodeFile opens and decodes path based on its extension.
func decodeFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != extMP3 && ext != extWAV && ext != extFLAC && ext != extOGG {
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch ext {
	case extMP3:
		streamer, format, err = decodeMP3(f)
	case extWAV:
		streamer, format, err = wav.Decode(f)
	case extFLAC:
		streamer, format, err = flac.Decode(f)
	case extOGG:
		streamer, format, err = vorbis.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, err
	}
	return streamer, format, nil
}

// load reads streamer fully into a buffer at the given sample rate.
func load(streamer beep.Streamer, format beep.Format, rate beep.SampleRate) *beep.Buffer {
	if format.SampleRate != rate {
		streamer = beep.Resample(4, format.SampleRate, rate, streamer)
		format.SampleRate = rate
	}
	buf := beep.NewBuffer(format)
	buf.Append(streamer)
	return buf
}

// voice is the Handle of the speaker backend. Its fields are guarded by
// the speaker lock.
type voice struct {
	src    string
	format beep.Format
	seg    beep.StreamSeeker

	ctrl    *beep.Ctrl
	pan     *effects.Pan
	volume  *effects.Volume
	gen     int
	stopped bool
}

// Position returns the offset relative to the window start.
func (v *voice) Position() time.Duration {
	speaker.Lock()
	defer speaker.Unlock()
	return v.format.SampleRate.D(v.seg.Position())
}

// tail reports the end of the wrapped streamer exactly once.
type tail struct {
	s     beep.Streamer
	done  func(err error)
	fired bool
}

func (t *tail) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	if !ok && !t.fired {
		t.fired = true
		t.done(t.s.Err())
	}
	return n, ok
}

func (t *tail) Err() error { return t.s.Err() }
