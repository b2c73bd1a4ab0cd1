package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/llehouerou/sfx/internal/channel"
	"github.com/llehouerou/sfx/internal/config"
	"github.com/llehouerou/sfx/internal/errmsg"
	"github.com/llehouerou/sfx/internal/instance"
	"github.com/llehouerou/sfx/internal/keymap"
	"github.com/llehouerou/sfx/internal/playback"
	"github.com/llehouerou/sfx/internal/player"
	"github.com/llehouerou/sfx/internal/stderr"
	"github.com/llehouerou/sfx/internal/ui/board"
)

const (
	refreshInterval = 100 * time.Millisecond
	delayStep       = 500 * time.Millisecond
	volumeStep      = 0.1
	panStep         = 0.25
)

type tickMsg time.Time

type eventMsg instance.Event

type closedMsg struct{}

type stderrMsg string

type model struct {
	svc      playback.Service
	speaker  *player.Player // nil when audio output is disabled
	sub      *instance.Subscription
	driver   <-chan string // captured stderr of the audio driver
	log      zerolog.Logger
	logFile  *os.File
	resolver *keymap.Resolver
	help     help.Model

	sources []board.Source
	playing []*instance.Instance
	stats   board.Stats

	policy     channel.Interrupt
	loop       bool
	delayArmed bool
	showHelp   bool

	message string
	isError bool
	width   int
}

func initialModel(capture *stderr.Capture) (model, error) {
	cfg, err := config.Load()
	if err != nil {
		return model{}, errors.New(errmsg.Format(errmsg.OpConfigLoad, err))
	}

	log, logFile, err := openLog(cfg.Level())
	if err != nil {
		return model{}, errors.New(errmsg.Format(errmsg.OpLogOpen, err))
	}

	m := model{
		log:      log,
		logFile:  logFile,
		resolver: keymap.NewResolver(keymap.All),
		help:     help.New(),
		width:    80,
	}
	if capture != nil {
		m.driver = capture.Lines()
	}

	var backend player.Interface = player.Noop{}
	if cfg.UseSpeaker() {
		m.speaker = player.New()
		backend = m.speaker
	}
	m.svc = playback.New(backend, playback.WithLogger(log))

	if err := cfg.Apply(m.svc); err != nil {
		_ = m.svc.Close()
		return model{}, errors.New(errmsg.Format(errmsg.OpSourceLoad, err))
	}
	m.sources = m.slotsFor(cfg)
	m.sub = m.svc.Subscribe()

	log.Info().Str("backend", cfg.Backend).Int("sources", len(cfg.Sources)).Msg("board ready")
	return m, nil
}

// openLog writes logs to the XDG state directory; stdout belongs to the TUI.
func openLog(level zerolog.Level) (zerolog.Logger, *os.File, error) {
	path, err := xdg.StateFile("sfx/sfx.log")
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return zerolog.New(f).Level(level).With().Timestamp().Logger(), f, nil
}

// slotsFor binds the first sources and sprites of cfg to the slot keys.
func (m model) slotsFor(cfg *config.Config) []board.Source {
	slots := cfg.Slots()
	n := min(len(slots), m.resolver.Slots(keymap.ActionPlay))
	out := make([]board.Source, 0, n)
	for _, sl := range slots[:n] {
		out = append(out, board.Source{Key: sl.Key, Src: sl.Src})
	}
	return out
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitEvent(m.sub), waitDriver(m.driver))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		return m, tickCmd()

	case eventMsg:
		m.record(instance.Event(msg))
		return m, waitEvent(m.sub)

	case closedMsg:
		return m, nil

	case stderrMsg:
		m.log.Warn().Str("line", string(msg)).Msg("audio driver")
		m.setError(string(msg))
		return m, waitDriver(m.driver)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cmd := m.resolver.Resolve(msg.String())
	switch cmd.Action {
	case keymap.ActionQuit:
		m.shutdown()
		return m, tea.Quit
	case keymap.ActionHelp:
		m.showHelp = !m.showHelp
	case keymap.ActionPlay:
		if cmd.Slot >= 0 && cmd.Slot < len(m.sources) {
			m.play(m.sources[cmd.Slot].Key)
		}
	case keymap.ActionPlayDelayed:
		m.delayArmed = !m.delayArmed
	case keymap.ActionStopAll:
		m.svc.StopAll()
		m.playing = nil
		m.setInfo("stopped everything")
	case keymap.ActionStopLast:
		m.stopLast()
	case keymap.ActionPauseAll:
		m.togglePause()
	case keymap.ActionPanLeft:
		m.panLast(-panStep)
	case keymap.ActionPanRight:
		m.panLast(panStep)
	case keymap.ActionCycleInterrupt:
		m.policy = (m.policy + 1) % (channel.InterruptLate + 1)
	case keymap.ActionToggleLoop:
		m.loop = !m.loop
	case keymap.ActionVolumeUp:
		m.svc.SetMasterVolume(m.svc.MasterVolume() + volumeStep)
	case keymap.ActionVolumeDown:
		m.svc.SetMasterVolume(m.svc.MasterVolume() - volumeStep)
	case keymap.ActionToggleMute:
		m.svc.SetMuted(!m.svc.Muted())
	case keymap.ActionReload:
		m.reload()
	}
	return m, nil
}

func (m *model) play(key string) {
	props := playback.PlayProps{Interrupt: playback.Ptr(m.policy)}
	if m.loop {
		props.Loop = playback.Ptr(instance.LoopForever)
	}
	if m.delayArmed {
		props.Delay = playback.Ptr(delayStep)
		m.delayArmed = false
	}

	inst := m.svc.Play(key, props)
	if inst.State() == instance.StateFailed {
		m.setError(errmsg.FormatWith(errmsg.OpPlaybackStart, key, inst.Err()))
		return
	}
	m.playing = append(m.pruned(), inst)
	m.setInfo("")
}

func (m *model) stopLast() {
	live := m.pruned()
	if len(live) == 0 {
		m.playing = nil
		return
	}
	last := live[len(live)-1]
	if err := last.Stop(); err != nil {
		m.setError(errmsg.FormatWith(errmsg.OpPlaybackStop, last.Src(), err))
	}
	m.playing = live[:len(live)-1]
}

// panLast moves the pan of the most recent live instance by delta.
func (m *model) panLast(delta float64) {
	m.playing = m.pruned()
	if len(m.playing) == 0 {
		return
	}
	last := m.playing[len(m.playing)-1]
	if err := last.SetPan(last.Pan() + delta); err != nil {
		m.setError(errmsg.FormatWith(errmsg.OpPlaybackPan, last.Src(), err))
		return
	}
	m.setInfo(fmt.Sprintf("pan %+.2f", last.Pan()))
}

// togglePause pauses every playing instance, or resumes them all when
// they are already paused.
func (m *model) togglePause() {
	live := m.pruned()
	m.playing = live
	resume := !slices.ContainsFunc(live, func(inst *instance.Instance) bool {
		return inst.State() == instance.StateSucceeded && !inst.Paused()
	})
	for _, inst := range live {
		if inst.State() != instance.StateSucceeded {
			continue
		}
		op, fn := errmsg.OpPlaybackPause, m.svc.Pause
		if resume {
			op, fn = errmsg.OpPlaybackResume, m.svc.Resume
		}
		if err := fn(inst); err != nil {
			m.setError(errmsg.FormatWith(op, inst.Src(), err))
		}
	}
}

func (m *model) reload() {
	cfg, err := config.Load()
	if err != nil {
		m.setError(errmsg.Format(errmsg.OpConfigLoad, err))
		return
	}
	m.svc.RemoveAllSources()
	m.playing = nil
	if err := cfg.Apply(m.svc); err != nil {
		m.setError(errmsg.Format(errmsg.OpSourceLoad, err))
		return
	}
	m.sources = m.slotsFor(cfg)
	m.setInfo(fmt.Sprintf("reloaded %d sources", len(cfg.Sources)))
}

// pruned returns the played instances that are not terminal yet.
func (m *model) pruned() []*instance.Instance {
	return slices.DeleteFunc(m.playing, func(inst *instance.Instance) bool {
		return inst.State().IsTerminal()
	})
}

func (m *model) record(e instance.Event) {
	switch e.Kind {
	case instance.EventSucceeded:
		m.stats.Plays++
	case instance.EventComplete:
		m.stats.Completed++
	case instance.EventInterrupted:
		m.stats.Interrupted++
	case instance.EventFailed:
		m.stats.Failed++
		m.log.Warn().Err(e.Err).Str("src", e.Src).Int64("id", e.ID).Msg("instance failed")
	}
}

func (m *model) setInfo(text string) {
	m.message, m.isError = text, false
}

func (m *model) setError(text string) {
	m.message, m.isError = text, true
}

func (m *model) shutdown() {
	if err := m.svc.Close(); err != nil {
		m.log.Error().Err(err).Msg("close playback")
	}
	m.log.Info().Int("plays", m.stats.Plays).Msg("board closed")
	if m.logFile != nil {
		m.logFile.Close()
	}
}

func waitEvent(sub *instance.Subscription) tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-sub.Events:
			return eventMsg(e)
		case <-sub.Done:
			return closedMsg{}
		}
	}
}

// waitDriver waits for the next captured driver line. A nil channel (no
// capture) never delivers.
func waitDriver(lines <-chan string) tea.Cmd {
	if lines == nil {
		return nil
	}
	return func() tea.Msg {
		line, ok := <-lines
		if !ok {
			return nil
		}
		return stderrMsg(line)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) View() string {
	s := board.State{
		Sources:    m.sources,
		Snapshot:   m.svc.Snapshot(),
		Stats:      m.stats,
		Policy:     m.policy,
		Loop:       m.loop,
		DelayArmed: m.delayArmed,
		Message:    m.message,
		IsError:    m.isError,
	}
	if m.speaker != nil {
		s.Cached = m.speaker.Cached()
		s.CachedBytes = m.speaker.CachedBytes()
	}

	var b strings.Builder
	b.WriteString(board.Render(s, m.width))
	b.WriteString("\n")
	if m.showHelp {
		b.WriteString(m.help.FullHelpView(helpGroups()))
	} else {
		b.WriteString(m.help.ShortHelpView(keymap.Help(keymap.ByContext("playback"))))
	}
	return b.String()
}

func helpGroups() [][]key.Binding {
	contexts := []string{"playback", "props", "output", "source", "global"}
	groups := make([][]key.Binding, 0, len(contexts))
	for _, c := range contexts {
		groups = append(groups, keymap.Help(keymap.ByContext(c)))
	}
	return groups
}

func main() {
	// Without the capture driver noise reaches the terminal, which is not fatal.
	capture, _ := stderr.Start(100)

	m, err := initialModel(capture)
	if err != nil {
		if capture != nil {
			capture.Stop()
		}
		fmt.Printf("Error initializing: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	if capture != nil {
		capture.Stop()
	}
	if err != nil {
		fmt.Println(errmsg.Format(errmsg.OpInitialize, err))
		os.Exit(1)
	}
}
