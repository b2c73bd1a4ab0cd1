// Package board renders the sound board: one line per source channel with
// its occupancy and the playheads of its active instances.
package board

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/llehouerou/sfx/internal/channel"
	"github.com/llehouerou/sfx/internal/playback"
)

// Source is a playable entry bound to a digit key.
type Source struct {
	Key string // play key: alias, sprite id or source path
	Src string // channel key
}

// Stats are counters accumulated from the service event stream.
type Stats struct {
	Plays       int
	Completed   int
	Interrupted int
	Failed      int
}

// State is everything the board displays.
type State struct {
	Sources  []Source
	Snapshot playback.Snapshot
	Stats    Stats

	Policy     channel.Interrupt
	Loop       bool
	DelayArmed bool

	Cached      int
	CachedBytes int64

	Message string
	IsError bool
}

const (
	keyCol  = 4  // "[1] "
	nameCol = 24 // source name
)

// Render draws the board inside a rounded frame of the given width.
func Render(s State, width int) string {
	inner := max(width-2, 20)
	lines := make([]string, 0, len(s.Sources)+6)

	lines = append(lines,
		row(titleStyle.Render("sfx"), header(s), inner),
		dimStyle.Render(strings.Repeat("─", inner)),
	)

	listed := make(map[string]bool, len(s.Sources))
	for i, src := range s.Sources {
		listed[src.Src] = true
		c, _ := s.Snapshot.Channel(src.Src)
		lines = append(lines, channelLine(fmt.Sprintf("[%d]", i+1), src.Key, c, inner))
	}
	for _, c := range s.Snapshot.Channels {
		if listed[c.Src] {
			continue
		}
		lines = append(lines, channelLine("", c.Src, c, inner))
	}
	if len(s.Sources) == 0 && len(s.Snapshot.Channels) == 0 {
		lines = append(lines, dimStyle.Render("no sources configured"))
	}

	lines = append(lines,
		dimStyle.Render(strings.Repeat("─", inner)),
		row(props(s), stats(s), inner),
	)
	if s.Message != "" {
		style := dimStyle
		if s.IsError {
			style = errorStyle
		}
		lines = append(lines, style.Render(fit(s.Message, inner)))
	}

	return frameStyle.Width(inner).Render(strings.Join(lines, "\n"))
}

// header renders master volume and mute state.
func header(s State) string {
	if s.Snapshot.Muted {
		return mutedStyle.Render("MUTED")
	}
	return fmt.Sprintf("master %d%%", int(s.Snapshot.MasterVolume*100+0.5))
}

func channelLine(slot, name string, c playback.ChannelSnapshot, width int) string {
	left := slotStyle.Render(fit(slot, keyCol)) + fit(name, nameCol) + " "

	m := meter(len(c.Active), c.Max)
	if c.Max >= 0 && len(c.Active) >= c.Max {
		m = fullStyle.Render(m)
	}

	var heads []string
	for _, inst := range c.Active {
		marker := playMarker
		if inst.Paused {
			marker = pausedMarker
		}
		heads = append(heads, marker+formatPosition(inst.Position))
	}
	right := strings.Join(heads, " ")
	avail := width - keyCol - nameCol - 1 - lipgloss.Width(m) - 2
	if lipgloss.Width(right) > avail {
		right = fit(right, max(avail, 0))
	}
	return row(left+m, right, width)
}

// props renders the properties applied to the next digit play.
func props(s State) string {
	parts := []string{"interrupt " + s.Policy.String()}
	if s.Loop {
		parts = append(parts, "loop ∞")
	}
	if s.DelayArmed {
		parts = append(parts, "delay armed")
	}
	if s.Snapshot.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", s.Snapshot.Pending))
	}
	return strings.Join(parts, " · ")
}

// stats renders play counters and the decoded cache size.
func stats(s State) string {
	parts := []string{
		humanize.Comma(int64(s.Stats.Plays)) + " plays",
		humanize.Comma(int64(s.Stats.Completed)) + " done",
		humanize.Comma(int64(s.Stats.Interrupted)) + " interrupted",
		humanize.Comma(int64(s.Stats.Failed)) + " failed",
	}
	if s.Cached > 0 {
		parts = append(parts, fmt.Sprintf("%d cached (%s)", s.Cached, humanize.IBytes(uint64(max(s.CachedBytes, 0))))) //nolint:gosec // clamped above
	}
	return dimStyle.Render(strings.Join(parts, " · "))
}
