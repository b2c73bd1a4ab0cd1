// Package keymap defines key bindings and action dispatch for the sound board.
package keymap

// Action represents a user-triggerable action.
type Action string

const (
	// Global actions
	ActionQuit Action = "quit"
	ActionHelp Action = "help"

	// Playback actions. ActionPlay plays the n-th configured source,
	// ActionPlayDelayed arms a delay for the next play.
	ActionPlay        Action = "play"
	ActionPlayDelayed Action = "play_delayed"
	ActionStopAll     Action = "stop_all"
	ActionStopLast    Action = "stop_last"
	ActionPauseAll    Action = "pause_all"
	ActionPanLeft     Action = "pan_left"
	ActionPanRight    Action = "pan_right"

	// Play property actions
	ActionCycleInterrupt Action = "cycle_interrupt"
	ActionToggleLoop     Action = "toggle_loop"

	// Output actions
	ActionVolumeUp   Action = "volume_up"
	ActionVolumeDown Action = "volume_down"
	ActionToggleMute Action = "toggle_mute"

	// Source actions
	ActionReload Action = "reload"
)
