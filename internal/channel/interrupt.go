package channel

import (
	"fmt"
	"strings"
)

// Interrupt is the policy deciding whether, and which, active instance is
// evicted to admit a new one when a channel is full.
type Interrupt int

const (
	// InterruptNone never evicts; a full channel denies admission.
	InterruptNone Interrupt = iota
	// InterruptAny evicts the first active instance found.
	InterruptAny
	// InterruptEarly evicts the least progressed instance.
	InterruptEarly
	// InterruptLate evicts the most progressed instance.
	InterruptLate
)

// String returns the policy name as used in configuration files.
func (p Interrupt) String() string {
	switch p {
	case InterruptNone:
		return "none"
	case InterruptAny:
		return "any"
	case InterruptEarly:
		return "early"
	case InterruptLate:
		return "late"
	default:
		return "unknown"
	}
}

// ParseInterrupt converts a policy name (case-insensitive) to an Interrupt.
func ParseInterrupt(s string) (Interrupt, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return InterruptNone, nil
	case "any":
		return InterruptAny, nil
	case "early":
		return InterruptEarly, nil
	case "late":
		return InterruptLate, nil
	default:
		return InterruptNone, fmt.Errorf("unknown interrupt policy %q", s)
	}
}
