// Package channel implements per-source admission control: how many
// instances of one source may play at once, and which one gives way.
package channel

import (
	"slices"

	"github.com/llehouerou/sfx/internal/instance"
)

const (
	// DefaultMax is the limit of a channel created without an explicit one.
	DefaultMax = 100

	// Unbounded disables the limit entirely.
	Unbounded = -1
)

// Channel is the set of instances of one source that currently hold a slot.
//
// A Channel is not safe for concurrent use; the playback service serializes
// every call.
type Channel struct {
	src     string
	max     int
	active  []*instance.Lifecycle
	onEvict func(*instance.Lifecycle)
}

// Verify Channel can own instance slots at compile time.
var _ instance.Owner = (*Channel)(nil)

// New creates a channel. Any negative max means Unbounded. onEvict, if not
// nil, runs after an instance was interrupted and removed to make room.
func New(src string, maxInstances int, onEvict func(*instance.Lifecycle)) *Channel {
	if maxInstances < 0 {
		maxInstances = Unbounded
	}
	return &Channel{
		src:     src,
		max:     maxInstances,
		onEvict: onEvict,
	}
}

// Src returns the source key.
func (c *Channel) Src() string { return c.src }

// Max returns the instance limit (Unbounded for none).
func (c *Channel) Max() int { return c.max }

// Len returns the number of active instances.
func (c *Channel) Len() int { return len(c.active) }

// Active returns a copy of the active instances in insertion order.
func (c *Channel) Active() []*instance.Lifecycle {
	return slices.Clone(c.active)
}

// Contains reports whether inst holds a slot in this channel.
func (c *Channel) Contains(inst *instance.Lifecycle) bool {
	return slices.Contains(c.active, inst)
}

// Admit decides whether inst may take a slot under policy, evicting an
// active instance if the policy allows it. It returns false, with no side
// effects, when admission is denied.
func (c *Channel) Admit(inst *instance.Lifecycle, policy Interrupt) bool {
	if inst.State().IsTerminal() {
		return false
	}
	switch owner := inst.Owner(); {
	case owner == instance.Owner(c):
		return true
	case owner != nil:
		return false
	}
	if c.max == 0 {
		return false
	}
	if c.max == Unbounded {
		return c.add(inst)
	}

	var candidate *instance.Lifecycle
	if policy != InterruptNone && len(c.active) > 0 {
		candidate = c.active[0]
	}

	for i := range c.max {
		if i >= len(c.active) {
			return c.add(inst)
		}
		target := c.active[i]
		if target.State().IsTerminal() {
			c.Remove(target)
			return c.add(inst)
		}

		switch policy {
		case InterruptEarly:
			if target.Position() < candidate.Position() {
				candidate = target
			}
		case InterruptLate:
			if target.Position() > candidate.Position() {
				candidate = target
			}
		case InterruptNone, InterruptAny:
			// None only looks for free slots; Any keeps the first candidate.
		}
	}

	if candidate == nil {
		return false
	}
	c.evict(candidate)
	return c.add(inst)
}

// Remove drops inst from the active set. It is a no-op if inst is absent.
func (c *Channel) Remove(inst *instance.Lifecycle) bool {
	idx := slices.Index(c.active, inst)
	if idx < 0 {
		return false
	}
	c.active = slices.Delete(c.active, idx, idx+1)
	inst.Release(c)
	return true
}

// RemoveAll interrupts every active instance, last admitted first.
func (c *Channel) RemoveAll() {
	for i := len(c.active) - 1; i >= 0; i-- {
		if i >= len(c.active) {
			continue
		}
		c.evict(c.active[i])
	}
}

func (c *Channel) add(inst *instance.Lifecycle) bool {
	if err := inst.Bind(c); err != nil {
		return false
	}
	c.active = append(c.active, inst)
	return true
}

// evict interrupts inst, makes sure it left the active set and runs the
// eviction hook.
func (c *Channel) evict(inst *instance.Lifecycle) {
	_ = inst.Interrupt() // terminal instances are only removed
	c.Remove(inst)
	if c.onEvict != nil {
		c.onEvict(inst)
	}
}
