package playback

import (
	"time"

	"github.com/llehouerou/sfx/internal/instance"
)

// Sprite is a named sub-clip of a source file.
type Sprite struct {
	ID       string
	Start    time.Duration
	Duration time.Duration
}

// SourceOptions describe how a source is registered.
type SourceOptions struct {
	// ID is an optional alias that Play accepts instead of the source key.
	ID string

	// MaxInstances limits concurrent instances. nil means channel.DefaultMax,
	// channel.Unbounded (-1) means no limit.
	MaxInstances *int

	// Defaults are the per-source play properties.
	Defaults PlayProps

	// Sprites are sub-clips playable by their own ID. They share the
	// source's channel.
	Sprites []Sprite
}

// source is a registered source.
type source struct {
	src      string
	id       string
	defaults PlayProps
	sprites  []string
}

// target is what a play key resolves to.
type target struct {
	src    string
	window instance.Window
}
