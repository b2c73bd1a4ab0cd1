package keymap

import "github.com/charmbracelet/bubbles/key"

// Binding maps keys to an action.
type Binding struct {
	Action      Action
	Keys        []string
	Description string
	Context     string // "global", "playback", "props", "output", "source"
}

var slotKeys = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"}

// All contains every key binding of the board.
var All = []Binding{
	// Global
	{ActionQuit, []string{"q", "ctrl+c"}, "Quit", "global"},
	{ActionHelp, []string{"?"}, "Toggle help", "global"},

	// Playback
	{ActionPlay, slotKeys, "Play source", "playback"},
	{ActionPlayDelayed, []string{"d"}, "Delay next play", "playback"},
	{ActionStopAll, []string{"s"}, "Stop all", "playback"},
	{ActionStopLast, []string{"x"}, "Stop last played", "playback"},
	{ActionPauseAll, []string{" "}, "Pause/resume all", "playback"},
	{ActionPanLeft, []string{"["}, "Pan last played left", "playback"},
	{ActionPanRight, []string{"]"}, "Pan last played right", "playback"},

	// Play properties
	{ActionCycleInterrupt, []string{"i"}, "Cycle interrupt policy", "props"},
	{ActionToggleLoop, []string{"l"}, "Toggle loop", "props"},

	// Output
	{ActionVolumeUp, []string{"+", "="}, "Master volume up", "output"},
	{ActionVolumeDown, []string{"-"}, "Master volume down", "output"},
	{ActionToggleMute, []string{"m"}, "Mute", "output"},

	// Sources
	{ActionReload, []string{"r"}, "Reload configuration", "source"},
}

// ByContext returns key bindings filtered by context.
func ByContext(context string) []Binding {
	var result []Binding
	for _, kb := range All {
		if kb.Context == context {
			result = append(result, kb)
		}
	}
	return result
}

// Help converts bindings for the bubbles help view.
func Help(bindings []Binding) []key.Binding {
	out := make([]key.Binding, 0, len(bindings))
	for _, b := range bindings {
		label := b.Keys[0]
		switch {
		case b.Action == ActionPlay:
			label = "1-9"
		case label == " ":
			label = "space"
		}
		out = append(out, key.NewBinding(
			key.WithKeys(b.Keys...),
			key.WithHelp(label, b.Description),
		))
	}
	return out
}
