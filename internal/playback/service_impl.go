// internal/playback/service_impl.go
package playback

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/sfx/internal/channel"
	"github.com/llehouerou/sfx/internal/instance"
	"github.com/llehouerou/sfx/internal/player"
)

// Verify serviceImpl implements Service and routes instance controls at
// compile time.
var (
	_ Service             = (*serviceImpl)(nil)
	_ instance.Controller = (*serviceImpl)(nil)
)

// serviceImpl serializes every transition behind mu: admission, eviction,
// delay expiry, backend signals and caller requests.
type serviceImpl struct {
	mu sync.Mutex

	backend  player.Interface
	registry *channel.Registry
	sources  map[string]*source
	keys     map[string]target // alias and sprite ids
	defaults PlayProps

	nextID  int64
	tracked map[int64]*instance.Lifecycle // non-terminal instances
	voices  map[int64]player.Handle
	handles map[player.Handle]*instance.Lifecycle

	master float64
	muted  bool

	observers instance.Observers
	log       zerolog.Logger
	closed    bool
}

// New creates a new playback service on top of backend.
func New(backend player.Interface, opts ...Option) Service {
	s := &serviceImpl{
		backend: backend,
		sources: make(map[string]*source),
		keys:    make(map[string]target),
		tracked: make(map[int64]*instance.Lifecycle),
		voices:  make(map[int64]player.Handle),
		handles: make(map[player.Handle]*instance.Lifecycle),
		master:  1,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = channel.NewRegistry(s.evicted)
	backend.Notify(s.handleSignal)
	return s
}

// RegisterChannel creates the channel of src. It returns false if one exists.
func (s *serviceImpl) RegisterChannel(src string, maxInstances int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Create(src, maxInstances)
}

// RegisterSource registers src with its alias, sprites, channel limit and
// default play properties.
func (s *serviceImpl) RegisterSource(src string, opts SourceOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[src]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, src)
	}
	if _, ok := s.keys[src]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAlias, src)
	}
	ids := make([]string, 0, len(opts.Sprites)+1)
	if opts.ID != "" {
		ids = append(ids, opts.ID)
	}
	for _, sp := range opts.Sprites {
		ids = append(ids, sp.ID)
	}
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%s: sprite without id", src)
		}
		if _, ok := s.keys[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateAlias, id)
		}
		if _, ok := s.sources[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateAlias, id)
		}
	}

	maxInstances := channel.DefaultMax
	if opts.MaxInstances != nil {
		maxInstances = *opts.MaxInstances
	}
	if !s.registry.Create(src, maxInstances) && opts.MaxInstances != nil {
		return fmt.Errorf("%w: channel of %s already exists", ErrDuplicateSource, src)
	}

	reg := &source{src: src, id: opts.ID, defaults: opts.Defaults}
	if opts.ID != "" {
		s.keys[opts.ID] = target{src: src}
	}
	for _, sp := range opts.Sprites {
		s.keys[sp.ID] = target{src: src, window: instance.Window{Start: sp.Start, Duration: sp.Duration}}
		reg.sprites = append(reg.sprites, sp.ID)
	}
	s.sources[src] = reg

	s.log.Debug().Str("src", src).Str("alias", opts.ID).Int("max", maxInstances).
		Int("sprites", len(opts.Sprites)).Msg("source registered")
	return nil
}

// RemoveSource cancels pending instances of src, interrupts its active ones
// and forgets the registration. It returns false if src was unknown.
func (s *serviceImpl) RemoveSource(src string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPendingLocked(func(lc *instance.Lifecycle) bool { return lc.Src() == src })
	removed := s.registry.RemoveSource(src)
	_, registered := s.sources[src]
	s.forgetLocked(src)
	s.backend.Unload(src)
	return removed || registered
}

// RemoveAllSources clears every registration, channel and instance.
func (s *serviceImpl) RemoveAllSources() {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcs := s.registry.Sources()
	for src := range s.sources {
		if !slices.Contains(srcs, src) {
			srcs = append(srcs, src)
		}
	}
	s.cancelPendingLocked(func(*instance.Lifecycle) bool { return true })
	s.registry.RemoveAll()
	for _, src := range srcs {
		s.forgetLocked(src)
		s.backend.Unload(src)
	}
}

// SetDefaults replaces the service-wide default play properties.
func (s *serviceImpl) SetDefaults(p PlayProps) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = p
}

// Defaults returns the service-wide default play properties.
func (s *serviceImpl) Defaults() PlayProps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

// Play creates an instance for key (a source key, an alias or a sprite id)
// and starts it now or after its delay. The returned instance may already
// be Failed when admission was attempted and denied.
func (s *serviceImpl) Play(key string, props PlayProps) *instance.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.resolveLocked(key)
	var srcDefaults PlayProps
	if reg, ok := s.sources[t.src]; ok {
		srcDefaults = reg.defaults
	}
	r := props.Or(srcDefaults).Or(s.defaults).resolve(t.window)

	s.nextID++
	lc := instance.New(s.nextID, t.src, r.window)
	lc.SetVolume(r.volume)
	lc.SetPan(r.pan)
	lc.SetLoop(r.loop)
	lc.SetPosition(r.offset)
	lc.Forward(&s.observers)
	lc.Route(s)

	if s.closed {
		_ = lc.Fail(ErrClosed)
		return lc.Instance
	}
	s.tracked[lc.ID()] = lc

	if r.delay > 0 {
		policy := r.interrupt
		timer := time.AfterFunc(r.delay, func() { s.expire(lc, policy) })
		_ = lc.Schedule(timer)
		s.log.Debug().Str("src", lc.Src()).Int64("id", lc.ID()).
			Dur("delay", r.delay).Msg("start delayed")
		return lc.Instance
	}

	s.startLocked(lc, r.interrupt)
	return lc.Instance
}

// expire runs when the delay of inst elapsed.
func (s *serviceImpl) expire(inst *instance.Lifecycle, policy channel.Interrupt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || inst.State() != instance.StateInited || s.tracked[inst.ID()] != inst {
		return
	}
	inst.Unschedule()
	s.startLocked(inst, policy)
}

// startLocked asks the channel for a slot, then hands inst to the backend.
func (s *serviceImpl) startLocked(inst *instance.Lifecycle, policy channel.Interrupt) {
	ch := s.registry.Ensure(inst.Src())
	if !ch.Admit(inst, policy) {
		s.log.Debug().Str("src", inst.Src()).Int64("id", inst.ID()).
			Stringer("policy", policy).Int("active", ch.Len()).Msg("admission denied")
		s.failLocked(inst, ErrAdmissionDenied)
		return
	}

	w := inst.Window()
	h, err := s.backend.Create(inst.Src(), w.Start, w.Duration)
	if err != nil {
		s.failLocked(inst, fmt.Errorf("%w: %w", ErrBackendStart, err))
		return
	}
	s.voices[inst.ID()] = h
	s.handles[h] = inst
	inst.Attach(h)

	if err := s.backend.Begin(h, s.paramsLocked(inst, inst.Position())); err != nil {
		s.failLocked(inst, fmt.Errorf("%w: %w", ErrBackendStart, err))
		return
	}
	_ = inst.Succeed()
	s.log.Debug().Str("src", inst.Src()).Int64("id", inst.ID()).
		Stringer("policy", policy).Msg("playback started")
}

// handleSignal maps backend notifications onto instance transitions.
func (s *serviceImpl) handleSignal(sig player.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.handles[sig.Handle]
	if !ok || inst.State() != instance.StateSucceeded {
		return
	}

	switch sig.Kind {
	case player.SignalComplete:
		if inst.Loops() != 0 {
			_ = inst.Loop()
			if err := s.backend.Begin(sig.Handle, s.paramsLocked(inst, 0)); err != nil {
				s.failLocked(inst, fmt.Errorf("%w: %w", ErrBackendError, err))
				return
			}
			s.log.Debug().Str("src", inst.Src()).Int64("id", inst.ID()).
				Int("loops", inst.Loops()).Msg("loop")
			return
		}
		_ = inst.Complete()
		s.retireLocked(inst)
		s.log.Debug().Str("src", inst.Src()).Int64("id", inst.ID()).Msg("complete")
	case player.SignalError:
		err := ErrBackendError
		if sig.Err != nil {
			err = fmt.Errorf("%w: %w", ErrBackendError, sig.Err)
		}
		s.failLocked(inst, err)
	case player.SignalStalled:
		s.failLocked(inst, ErrBackendStall)
	}
}

// evicted runs after a channel interrupted inst to make room.
func (s *serviceImpl) evicted(inst *instance.Lifecycle) {
	s.log.Debug().Str("src", inst.Src()).Int64("id", inst.ID()).
		Dur("position", inst.Position()).Msg("interrupted")
	s.retireLocked(inst)
}

// Replay applies props to a playing instance and resumes it if paused.
// Unset properties keep the instance's current values.
func (s *serviceImpl) Replay(inst *instance.Instance, props PlayProps) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lc, err := s.lookupLocked(inst)
	if err != nil {
		return err
	}
	if lc.State() != instance.StateSucceeded {
		return fmt.Errorf("%w: replay in %s", instance.ErrInvalidTransition, lc.State())
	}
	h := s.voices[lc.ID()]

	if props.Loop != nil {
		lc.SetLoop(*props.Loop)
	}
	if props.Volume != nil {
		s.backend.SetVolume(h, s.effectiveLocked(lc.SetVolume(*props.Volume)))
	}
	if props.Pan != nil {
		if err := s.backend.SetPan(h, lc.SetPan(*props.Pan)); err != nil {
			return err
		}
	}
	if props.Offset != nil {
		s.backend.Seek(h, lc.SetPosition(*props.Offset))
	}
	if lc.Paused() {
		_ = lc.Resume()
		s.backend.Resume(h)
	}
	return nil
}

// StopAll stops every tracked instance, pending ones included.
func (s *serviceImpl) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAllLocked()
}

func (s *serviceImpl) stopAllLocked() {
	for _, inst := range s.trackedLocked() {
		if err := inst.Stop(); err != nil {
			continue
		}
		s.retireLocked(inst)
	}
}

// Stop finishes inst. A pending delayed instance is cancelled and never
// reaches the backend.
func (s *serviceImpl) Stop(inst *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lc, err := s.lookupLocked(inst)
	if err != nil {
		return err
	}
	pending := lc.Pending()
	if err := lc.Stop(); err != nil {
		return err
	}
	s.retireLocked(lc)
	if pending {
		s.log.Debug().Str("src", lc.Src()).Int64("id", lc.ID()).Msg("delayed start cancelled")
	}
	return nil
}

// Pause pauses a playing instance.
func (s *serviceImpl) Pause(inst *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lc, err := s.lookupLocked(inst)
	if err != nil {
		return err
	}
	if err := lc.Pause(); err != nil {
		return err
	}
	if h, ok := s.voices[lc.ID()]; ok {
		s.backend.Pause(h)
	}
	return nil
}

// Resume resumes a paused instance.
func (s *serviceImpl) Resume(inst *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lc, err := s.lookupLocked(inst)
	if err != nil {
		return err
	}
	if err := lc.Resume(); err != nil {
		return err
	}
	if h, ok := s.voices[lc.ID()]; ok {
		s.backend.Resume(h)
	}
	return nil
}

// SetVolume sets the volume of inst (clamped to 0..1).
func (s *serviceImpl) SetVolume(inst *instance.Instance, level float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lc, err := s.lookupLocked(inst)
	if err != nil {
		return err
	}
	level = lc.SetVolume(level)
	if h, ok := s.voices[lc.ID()]; ok {
		s.backend.SetVolume(h, s.effectiveLocked(level))
	}
	return nil
}

// SetPan sets the pan of inst (clamped to -1..1). The backend may reject it.
func (s *serviceImpl) SetPan(inst *instance.Instance, pan float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lc, err := s.lookupLocked(inst)
	if err != nil {
		return err
	}
	pan = lc.SetPan(pan)
	if h, ok := s.voices[lc.ID()]; ok {
		return s.backend.SetPan(h, pan)
	}
	return nil
}

// SetPosition moves the playhead of inst. For a pending instance it sets
// the offset it will start at.
func (s *serviceImpl) SetPosition(inst *instance.Instance, pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lc, err := s.lookupLocked(inst)
	if err != nil {
		return err
	}
	pos = lc.SetPosition(pos)
	if h, ok := s.voices[lc.ID()]; ok {
		s.backend.Seek(h, pos)
	}
	return nil
}

// SetMasterVolume sets the level (0..1) applied on top of every instance.
func (s *serviceImpl) SetMasterVolume(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.master = min(max(level, 0), 1)
	s.applyVolumesLocked()
}

// MasterVolume returns the master level.
func (s *serviceImpl) MasterVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master
}

// SetMuted silences (or restores) every instance without losing levels.
func (s *serviceImpl) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
	s.applyVolumesLocked()
}

// Muted returns true if output is muted.
func (s *serviceImpl) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Snapshot returns the current channel occupancy.
func (s *serviceImpl) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{MasterVolume: s.master, Muted: s.muted}
	for _, src := range s.registry.Sources() {
		ch := s.registry.Get(src)
		cs := ChannelSnapshot{Src: src, Max: ch.Max()}
		for _, inst := range ch.Active() {
			cs.Active = append(cs.Active, InstanceSnapshot{
				ID:       inst.ID(),
				State:    inst.State(),
				Paused:   inst.Paused(),
				Position: inst.Position(),
				Loops:    inst.Loops(),
			})
		}
		snap.Channels = append(snap.Channels, cs)
	}
	for _, inst := range s.tracked {
		if inst.Pending() {
			snap.Pending++
		}
	}
	return snap
}

// Subscribe creates a subscription to the events of every instance.
func (s *serviceImpl) Subscribe() *instance.Subscription {
	return s.observers.Subscribe()
}

// Close stops everything and signals subscribers. Later Play calls return
// instances failed with ErrClosed.
func (s *serviceImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.stopAllLocked()
	s.closed = true
	s.observers.Close()
	return nil
}

func (s *serviceImpl) resolveLocked(key string) target {
	if t, ok := s.keys[key]; ok {
		return t
	}
	return target{src: key}
}

// lookupLocked returns the lifecycle of an instance this service tracks.
func (s *serviceImpl) lookupLocked(inst *instance.Instance) (*instance.Lifecycle, error) {
	if inst == nil {
		return nil, ErrUnknownInstance
	}
	if lc, ok := s.tracked[inst.ID()]; ok && lc.Instance == inst {
		return lc, nil
	}
	if inst.State().IsTerminal() {
		return nil, fmt.Errorf("%w: instance is %s", instance.ErrInvalidTransition, inst.State())
	}
	return nil, ErrUnknownInstance
}

// failLocked moves inst to Failed and releases its backend resource.
func (s *serviceImpl) failLocked(inst *instance.Lifecycle, err error) {
	if ferr := inst.Fail(err); ferr != nil {
		return
	}
	s.retireLocked(inst)
	s.log.Debug().Err(err).Str("src", inst.Src()).Int64("id", inst.ID()).Msg("failed")
}

// retireLocked forgets a terminal instance and halts its backend resource.
func (s *serviceImpl) retireLocked(inst *instance.Lifecycle) {
	if h, ok := s.voices[inst.ID()]; ok {
		s.backend.Stop(h)
		delete(s.voices, inst.ID())
		delete(s.handles, h)
	}
	delete(s.tracked, inst.ID())
}

func (s *serviceImpl) cancelPendingLocked(match func(*instance.Lifecycle) bool) {
	for _, inst := range s.trackedLocked() {
		if !inst.Pending() || !match(inst) {
			continue
		}
		if err := inst.Stop(); err == nil {
			s.retireLocked(inst)
		}
	}
}

// forgetLocked drops the registration of src and every key pointing to it.
func (s *serviceImpl) forgetLocked(src string) {
	delete(s.sources, src)
	maps.DeleteFunc(s.keys, func(_ string, t target) bool { return t.src == src })
}

// trackedLocked returns tracked instances ordered by id.
func (s *serviceImpl) trackedLocked() []*instance.Lifecycle {
	out := make([]*instance.Lifecycle, 0, len(s.tracked))
	for _, id := range slices.Sorted(maps.Keys(s.tracked)) {
		out = append(out, s.tracked[id])
	}
	return out
}

func (s *serviceImpl) paramsLocked(inst *instance.Lifecycle, offset time.Duration) player.Params {
	return player.Params{
		Offset: offset,
		Volume: s.effectiveLocked(inst.Volume()),
		Pan:    inst.Pan(),
	}
}

func (s *serviceImpl) effectiveLocked(level float64) float64 {
	if s.muted {
		return 0
	}
	return level * s.master
}

func (s *serviceImpl) applyVolumesLocked() {
	for id, h := range s.voices {
		if inst, ok := s.tracked[id]; ok {
			s.backend.SetVolume(h, s.effectiveLocked(inst.Volume()))
		}
	}
}
