package playback

import (
	"time"

	"github.com/llehouerou/sfx/internal/instance"
)

// Snapshot is a point-in-time copy of the service state.
type Snapshot struct {
	Channels     []ChannelSnapshot
	Pending      int // delayed instances waiting for admission
	MasterVolume float64
	Muted        bool
}

// ChannelSnapshot describes one channel's occupancy.
type ChannelSnapshot struct {
	Src    string
	Max    int
	Active []InstanceSnapshot
}

// InstanceSnapshot describes one active instance.
type InstanceSnapshot struct {
	ID       int64
	State    instance.State
	Paused   bool
	Position time.Duration
	Loops    int
}

// Channel returns the snapshot of src, if any.
func (s Snapshot) Channel(src string) (ChannelSnapshot, bool) {
	for _, c := range s.Channels {
		if c.Src == src {
			return c, true
		}
	}
	return ChannelSnapshot{}, false
}

// ActiveCount returns the number of instances holding a slot, all channels
// included.
func (s Snapshot) ActiveCount() int {
	n := 0
	for _, c := range s.Channels {
		n += len(c.Active)
	}
	return n
}
