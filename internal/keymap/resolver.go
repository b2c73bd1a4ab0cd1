package keymap

import "slices"

// slotActions address the source at the index of the pressed key within
// their binding.
var slotActions = []Action{ActionPlay}

// Command is a resolved key press.
type Command struct {
	Action Action
	Slot   int // source index for slot actions, -1 otherwise
}

// Resolver maps key strings to commands.
type Resolver struct {
	commands map[string]Command
	slots    map[Action]int // slot action -> number of slot keys
}

// NewResolver creates a resolver from bindings. When a key is bound twice
// the later binding wins.
func NewResolver(bindings []Binding) *Resolver {
	r := &Resolver{
		commands: make(map[string]Command),
		slots:    make(map[Action]int),
	}
	for _, b := range bindings {
		slotted := slices.Contains(slotActions, b.Action)
		for i, k := range b.Keys {
			cmd := Command{Action: b.Action, Slot: -1}
			if slotted {
				cmd.Slot = r.slots[b.Action] + i
			}
			r.commands[k] = cmd
		}
		if slotted {
			r.slots[b.Action] += len(b.Keys)
		}
	}
	return r
}

// Resolve returns the command for a key. Unbound keys resolve to an empty
// Action.
func (r *Resolver) Resolve(k string) Command {
	if cmd, ok := r.commands[k]; ok {
		return cmd
	}
	return Command{Slot: -1}
}

// Slots returns how many sources the keys of a slot action address.
func (r *Resolver) Slots(action Action) int {
	return r.slots[action]
}
