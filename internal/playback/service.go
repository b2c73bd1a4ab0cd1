package playback

import (
	"time"

	"github.com/llehouerou/sfx/internal/instance"
)

// Service defines the playback coordinator contract.
type Service interface {
	// Registration
	RegisterChannel(src string, maxInstances int) bool
	RegisterSource(src string, opts SourceOptions) error
	RemoveSource(src string) bool
	RemoveAllSources()
	SetDefaults(p PlayProps)
	Defaults() PlayProps

	// Playback control
	Play(key string, props PlayProps) *instance.Instance
	Replay(inst *instance.Instance, props PlayProps) error
	StopAll()

	// Per-instance control
	Stop(inst *instance.Instance) error
	Pause(inst *instance.Instance) error
	Resume(inst *instance.Instance) error
	SetVolume(inst *instance.Instance, level float64) error
	SetPan(inst *instance.Instance, pan float64) error
	SetPosition(inst *instance.Instance, pos time.Duration) error

	// Master output
	SetMasterVolume(level float64)
	MasterVolume() float64
	SetMuted(muted bool)
	Muted() bool

	// State queries
	Snapshot() Snapshot

	// Event subscription (events of every instance)
	Subscribe() *instance.Subscription

	// Lifecycle
	Close() error
}
