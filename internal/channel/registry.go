package channel

import (
	"maps"
	"slices"

	"github.com/llehouerou/sfx/internal/instance"
)

// Registry maps source keys to their channels.
//
// A Registry is not safe for concurrent use.
type Registry struct {
	channels map[string]*Channel
	onEvict  func(*instance.Lifecycle)
}

// NewRegistry creates an empty registry. onEvict is handed to every channel
// it creates.
func NewRegistry(onEvict func(*instance.Lifecycle)) *Registry {
	return &Registry{
		channels: make(map[string]*Channel),
		onEvict:  onEvict,
	}
}

// Create registers a channel for src. It returns false, leaving the
// existing channel untouched, if src is already registered.
func (r *Registry) Create(src string, maxInstances int) bool {
	if _, ok := r.channels[src]; ok {
		return false
	}
	r.channels[src] = New(src, maxInstances, r.onEvict)
	return true
}

// Ensure returns the channel for src, creating it with DefaultMax if needed.
func (r *Registry) Ensure(src string) *Channel {
	if c, ok := r.channels[src]; ok {
		return c
	}
	c := New(src, DefaultMax, r.onEvict)
	r.channels[src] = c
	return c
}

// Get returns the channel for src, or nil if none is registered.
func (r *Registry) Get(src string) *Channel {
	return r.channels[src]
}

// RemoveSource interrupts every instance of src and forgets its channel.
// It returns false if src is not registered.
func (r *Registry) RemoveSource(src string) bool {
	c, ok := r.channels[src]
	if !ok {
		return false
	}
	c.RemoveAll()
	delete(r.channels, src)
	return true
}

// RemoveAll interrupts every instance of every channel and clears the registry.
func (r *Registry) RemoveAll() {
	for _, src := range r.Sources() {
		r.channels[src].RemoveAll()
	}
	clear(r.channels)
}

// Sources returns the registered source keys, sorted.
func (r *Registry) Sources() []string {
	return slices.Sorted(maps.Keys(r.channels))
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	return len(r.channels)
}
