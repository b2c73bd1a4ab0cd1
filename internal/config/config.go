package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/llehouerou/sfx/internal/channel"
	"github.com/llehouerou/sfx/internal/playback"
)

// Backend names accepted by the backend key.
const (
	BackendSpeaker = "speaker"
	BackendNone    = "none"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Backend  string `koanf:"backend"`   // "speaker" (default) or "none"
	LogLevel string `koanf:"log_level"` // zerolog level name, default "info"

	// Process-wide default play properties
	Defaults DefaultsConfig `koanf:"defaults"`

	Sources []SourceConfig `koanf:"sources"`
}

// DefaultsConfig holds optional play properties. Unset keys fall through to
// the next level of defaults.
type DefaultsConfig struct {
	Interrupt string         `koanf:"interrupt"` // "none", "any", "early", "late"
	Delay     *time.Duration `koanf:"delay"`
	Offset    *time.Duration `koanf:"offset"`
	Loop      *int           `koanf:"loop"` // -1 loops forever
	Volume    *float64       `koanf:"volume"`
	Pan       *float64       `koanf:"pan"`
}

// SourceConfig registers one sound source.
type SourceConfig struct {
	Src          string `koanf:"src"`
	ID           string `koanf:"id"`            // optional alias
	MaxInstances *int   `koanf:"max_instances"` // absent: 100, -1: unbounded

	DefaultsConfig `koanf:",squash"`

	Sprites []SpriteConfig `koanf:"sprites"`
}

// SpriteConfig names a sub-range of a source.
type SpriteConfig struct {
	ID       string        `koanf:"id"`
	Start    time.Duration `koanf:"start"`
	Duration time.Duration `koanf:"duration"`
}

func Load() (*Config, error) {
	return load(getConfigPaths())
}

// load reads every existing path in order; later files override earlier ones.
func load(paths []string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		Backend:  BackendSpeaker,
		LogLevel: zerolog.InfoLevel.String(),
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Sources {
		cfg.Sources[i].Src = expandPath(cfg.Sources[i].Src)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getConfigPaths() []string {
	return []string{
		// 1. $XDG_CONFIG_HOME/sfx/config.toml
		filepath.Join(xdg.ConfigHome, "sfx", "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// Validate checks names and ranges. Errors name the offending source.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendSpeaker, BackendNone:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalid, err)
	}
	if _, err := c.Defaults.Props(); err != nil {
		return fmt.Errorf("%w: defaults: %w", ErrInvalid, err)
	}

	seen := make(map[string]bool)
	for i, src := range c.Sources {
		if src.Src == "" {
			return fmt.Errorf("%w: sources[%d]: missing src", ErrInvalid, i)
		}
		if seen[src.Src] {
			return fmt.Errorf("%w: %s: registered twice", ErrInvalid, src.Src)
		}
		seen[src.Src] = true
		if _, err := src.Props(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, src.Src, err)
		}
		for j, sp := range src.Sprites {
			if sp.ID == "" {
				return fmt.Errorf("%w: %s: sprites[%d]: missing id", ErrInvalid, src.Src, j)
			}
			if sp.Start < 0 || sp.Duration < 0 {
				return fmt.Errorf("%w: %s: sprite %s: negative window", ErrInvalid, src.Src, sp.ID)
			}
		}
	}
	return nil
}

// Level returns the configured log level, info if unset or invalid.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// UseSpeaker returns true unless audio output is disabled.
func (c *Config) UseSpeaker() bool {
	return c.Backend != BackendNone
}

// Props converts the configured defaults to play properties.
func (d DefaultsConfig) Props() (playback.PlayProps, error) {
	p := playback.PlayProps{
		Delay:  d.Delay,
		Offset: d.Offset,
		Loop:   d.Loop,
		Volume: d.Volume,
		Pan:    d.Pan,
	}
	if d.Interrupt != "" {
		policy, err := channel.ParseInterrupt(d.Interrupt)
		if err != nil {
			return playback.PlayProps{}, err
		}
		p.Interrupt = &policy
	}
	return p, nil
}

// Apply sets the process-wide defaults and registers every source on svc.
func (c *Config) Apply(svc playback.Service) error {
	defaults, err := c.Defaults.Props()
	if err != nil {
		return err
	}
	svc.SetDefaults(defaults)

	for _, src := range c.Sources {
		props, err := src.Props()
		if err != nil {
			return fmt.Errorf("%s: %w", src.Src, err)
		}
		opts := playback.SourceOptions{
			ID:           src.ID,
			MaxInstances: src.MaxInstances,
			Defaults:     props,
		}
		for _, sp := range src.Sprites {
			opts.Sprites = append(opts.Sprites, playback.Sprite{
				ID:       sp.ID,
				Start:    sp.Start,
				Duration: sp.Duration,
			})
		}
		if err := svc.RegisterSource(src.Src, opts); err != nil {
			return err
		}
	}
	return nil
}

// Slot is one playable entry of the configuration.
type Slot struct {
	Key string // alias, sprite id or source path
	Src string
}

// Slots returns the playable entries in file order: each source, by its
// alias when set, followed by its sprites.
func (c *Config) Slots() []Slot {
	var out []Slot
	for _, src := range c.Sources {
		k := src.Src
		if src.ID != "" {
			k = src.ID
		}
		out = append(out, Slot{Key: k, Src: src.Src})
		for _, sp := range src.Sprites {
			out = append(out, Slot{Key: sp.ID, Src: src.Src})
		}
	}
	return out
}
