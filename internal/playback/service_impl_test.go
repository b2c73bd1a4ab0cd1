// internal/playback/service_impl_test.go
package playback

import (
	"bytes"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/sfx/internal/channel"
	"github.com/llehouerou/sfx/internal/instance"
	"github.com/llehouerou/sfx/internal/player"
)

const (
	testExplosion = "sounds/explosion.wav"
	testLaser     = "sounds/laser.wav"
	testSprites   = "sounds/sprites.ogg"
)

func newTestService(t *testing.T) (Service, *player.Mock) {
	t.Helper()
	m := player.NewMock()
	svc := New(m)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, m
}

// handleOf returns the mock handle created for the n-th successful Create.
func handleOf(t *testing.T, m *player.Mock, n int) *player.MockHandle {
	t.Helper()
	handles := m.Handles()
	require.Greater(t, len(handles), n, "handle #%d not created", n)
	return handles[n]
}

func activeIDs(svc Service, src string) []int64 {
	c, ok := svc.Snapshot().Channel(src)
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(c.Active))
	for _, a := range c.Active {
		ids = append(ids, a.ID)
	}
	return ids
}

func assertWithinLimits(t *testing.T, svc Service) {
	t.Helper()
	for _, c := range svc.Snapshot().Channels {
		if c.Max >= 0 {
			assert.LessOrEqual(t, len(c.Active), c.Max, "channel %s over its limit", c.Src)
		}
		for _, a := range c.Active {
			assert.False(t, a.State.IsTerminal(), "terminal instance %d left in %s", a.ID, c.Src)
		}
	}
}

func TestNew_ReturnsService(t *testing.T) {
	svc := New(player.NewMock())

	require.NotNil(t, svc)
	assert.InDelta(t, 1.0, svc.MasterVolume(), 1e-9)
	assert.False(t, svc.Muted())
}

func TestService_Play_StartsImmediately(t *testing.T) {
	svc, m := newTestService(t)

	inst := svc.Play(testExplosion, PlayProps{Volume: Ptr(0.5), Pan: Ptr(-0.5)})

	assert.Equal(t, instance.StateSucceeded, inst.State())
	assert.Equal(t, testExplosion, inst.Src())
	assert.Equal(t, []string{"create " + testExplosion, "begin " + testExplosion}, m.Calls())
	h := handleOf(t, m, 0)
	assert.InDelta(t, 0.5, h.Volume(), 1e-9)
	assert.InDelta(t, -0.5, h.Pan(), 1e-9)
	assert.Equal(t, []int64{inst.ID()}, activeIDs(svc, testExplosion))
}

func TestService_Play_ImplicitChannelUsesDefaultMax(t *testing.T) {
	svc, _ := newTestService(t)

	svc.Play(testLaser, PlayProps{})

	c, ok := svc.Snapshot().Channel(testLaser)
	require.True(t, ok)
	assert.Equal(t, channel.DefaultMax, c.Max)
}

func TestService_Play_IDsAreMonotonic(t *testing.T) {
	svc, _ := newTestService(t)

	a := svc.Play(testLaser, PlayProps{})
	b := svc.Play(testExplosion, PlayProps{})
	c := svc.Play(testLaser, PlayProps{})

	assert.Less(t, a.ID(), b.ID())
	assert.Less(t, b.ID(), c.ID())
}

func TestService_AnyEvictsOldest(t *testing.T) {
	svc, m := newTestService(t)
	require.True(t, svc.RegisterChannel("explosion", 3))

	var played []*instance.Instance
	for range 4 {
		played = append(played, svc.Play("explosion", PlayProps{Interrupt: Ptr(channel.InterruptAny)}))
		assertWithinLimits(t, svc)
	}

	assert.Equal(t, instance.StateInterrupted, played[0].State())
	for _, inst := range played[1:] {
		assert.Equal(t, instance.StateSucceeded, inst.State())
	}
	assert.Equal(t, []int64{played[1].ID(), played[2].ID(), played[3].ID()}, activeIDs(svc, "explosion"))
	assert.True(t, handleOf(t, m, 0).Stopped(), "evicted instance halted on the backend")
}

func TestService_NoneDeniesWhenFull(t *testing.T) {
	svc, m := newTestService(t)
	require.True(t, svc.RegisterChannel(testExplosion, 1))
	a := svc.Play(testExplosion, PlayProps{})
	sub := svc.Subscribe()

	b := svc.Play(testExplosion, PlayProps{Interrupt: Ptr(channel.InterruptNone)})

	assert.Equal(t, instance.StateFailed, b.State())
	require.ErrorIs(t, b.Err(), ErrAdmissionDenied)
	assert.Equal(t, instance.StateSucceeded, a.State())
	assert.Equal(t, []int64{a.ID()}, activeIDs(svc, testExplosion))
	assert.Len(t, m.Handles(), 1, "denied instance never reaches the backend")

	e := <-sub.Events
	assert.Equal(t, instance.EventFailed, e.Kind)
	assert.Equal(t, b.ID(), e.ID)
}

func TestService_EarlyEvictsLeastProgressed(t *testing.T) {
	svc, m := newTestService(t)
	require.True(t, svc.RegisterChannel(testExplosion, 2))
	a := svc.Play(testExplosion, PlayProps{})
	b := svc.Play(testExplosion, PlayProps{})
	handleOf(t, m, 0).SetPosition(500 * time.Millisecond)
	handleOf(t, m, 1).SetPosition(100 * time.Millisecond)

	c := svc.Play(testExplosion, PlayProps{Interrupt: Ptr(channel.InterruptEarly)})

	assert.Equal(t, instance.StateInterrupted, b.State())
	assert.Equal(t, 100*time.Millisecond, b.Position())
	assert.Equal(t, []int64{a.ID(), c.ID()}, activeIDs(svc, testExplosion))
	assert.True(t, handleOf(t, m, 1).Stopped())
}

func TestService_LateEvictsMostProgressed(t *testing.T) {
	svc, m := newTestService(t)
	require.True(t, svc.RegisterChannel(testExplosion, 2))
	a := svc.Play(testExplosion, PlayProps{})
	b := svc.Play(testExplosion, PlayProps{})
	handleOf(t, m, 0).SetPosition(500 * time.Millisecond)
	handleOf(t, m, 1).SetPosition(100 * time.Millisecond)

	svc.Play(testExplosion, PlayProps{Interrupt: Ptr(channel.InterruptLate)})

	assert.Equal(t, instance.StateInterrupted, a.State())
	assert.Equal(t, instance.StateSucceeded, b.State())
}

func TestService_UnboundedChannel(t *testing.T) {
	svc, _ := newTestService(t)
	require.True(t, svc.RegisterChannel(testLaser, channel.Unbounded))

	for range 250 {
		inst := svc.Play(testLaser, PlayProps{Interrupt: Ptr(channel.InterruptAny)})
		require.Equal(t, instance.StateSucceeded, inst.State())
	}

	assert.Len(t, activeIDs(svc, testLaser), 250)
}

func TestService_ZeroMaxAlwaysFails(t *testing.T) {
	svc, _ := newTestService(t)
	require.True(t, svc.RegisterChannel(testLaser, 0))

	inst := svc.Play(testLaser, PlayProps{Interrupt: Ptr(channel.InterruptAny)})

	assert.Equal(t, instance.StateFailed, inst.State())
	require.ErrorIs(t, inst.Err(), ErrAdmissionDenied)
}

func TestService_RegisterChannel_Duplicate(t *testing.T) {
	svc, _ := newTestService(t)

	assert.True(t, svc.RegisterChannel(testLaser, 2))
	assert.False(t, svc.RegisterChannel(testLaser, 5))
}

func TestService_PropsPrecedence(t *testing.T) {
	svc, m := newTestService(t)
	svc.SetDefaults(PlayProps{Volume: Ptr(0.9), Pan: Ptr(0.3), Loop: Ptr(1)})
	require.NoError(t, svc.RegisterSource(testExplosion, SourceOptions{
		Defaults: PlayProps{Volume: Ptr(0.6)},
	}))

	fromSource := svc.Play(testExplosion, PlayProps{})
	explicit := svc.Play(testExplosion, PlayProps{Volume: Ptr(0.2)})
	fromService := svc.Play(testLaser, PlayProps{})

	assert.InDelta(t, 0.6, handleOf(t, m, 0).Volume(), 1e-9)
	assert.InDelta(t, 0.3, handleOf(t, m, 0).Pan(), 1e-9, "pan falls through to the service default")
	assert.InDelta(t, 0.2, handleOf(t, m, 1).Volume(), 1e-9)
	assert.InDelta(t, 0.9, handleOf(t, m, 2).Volume(), 1e-9)
	assert.Equal(t, 1, fromSource.Loops())
	assert.Equal(t, 1, explicit.Loops())
	assert.Equal(t, 1, fromService.Loops())
	require.NotNil(t, svc.Defaults().Volume)
	assert.InDelta(t, 0.9, *svc.Defaults().Volume, 1e-9)
}

func TestService_PerSourceInterruptDefault(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.RegisterSource(testExplosion, SourceOptions{
		MaxInstances: Ptr(1),
		Defaults:     PlayProps{Interrupt: Ptr(channel.InterruptAny)},
	}))
	a := svc.Play(testExplosion, PlayProps{})

	b := svc.Play(testExplosion, PlayProps{})
	c := svc.Play(testExplosion, PlayProps{Interrupt: Ptr(channel.InterruptNone)})

	assert.Equal(t, instance.StateInterrupted, a.State())
	assert.Equal(t, instance.StateSucceeded, b.State())
	assert.Equal(t, instance.StateFailed, c.State(), "explicit none overrides the source default")
}

func TestService_WithDefaultsOption(t *testing.T) {
	m := player.NewMock()
	svc := New(m, WithDefaults(PlayProps{Volume: Ptr(0.4)}))
	defer svc.Close()

	svc.Play(testLaser, PlayProps{})

	assert.InDelta(t, 0.4, handleOf(t, m, 0).Volume(), 1e-9)
}

func TestService_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	svc := New(player.NewMock(), WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	defer svc.Close()
	require.True(t, svc.RegisterChannel(testLaser, 0))

	svc.Play(testLaser, PlayProps{})

	out := buf.String()
	assert.Contains(t, out, `"component":"playback"`)
	assert.Contains(t, out, `"message":"admission denied"`)
	assert.Contains(t, out, `"src":"`+testLaser+`"`)
}

func TestService_Offset(t *testing.T) {
	svc, m := newTestService(t)

	inst := svc.Play(testLaser, PlayProps{Offset: Ptr(250 * time.Millisecond)})

	assert.Equal(t, 250*time.Millisecond, handleOf(t, m, 0).Position())
	assert.Equal(t, 250*time.Millisecond, inst.Position())
}

func TestService_AliasAndSprites(t *testing.T) {
	svc, m := newTestService(t)
	require.NoError(t, svc.RegisterSource(testSprites, SourceOptions{
		ID:           "sfx",
		MaxInstances: Ptr(2),
		Sprites: []Sprite{
			{ID: "coin", Start: time.Second, Duration: 300 * time.Millisecond},
			{ID: "jump", Start: 2 * time.Second, Duration: 500 * time.Millisecond},
		},
	}))

	coin := svc.Play("coin", PlayProps{})
	jump := svc.Play("jump", PlayProps{})
	whole := svc.Play("sfx", PlayProps{Interrupt: Ptr(channel.InterruptAny)})

	assert.Equal(t, testSprites, coin.Src())
	assert.Equal(t, instance.Window{Start: time.Second, Duration: 300 * time.Millisecond}, coin.Window())
	assert.Equal(t, time.Second, handleOf(t, m, 0).Start)
	assert.Equal(t, 300*time.Millisecond, handleOf(t, m, 0).Duration)
	assert.Equal(t, 2*time.Second, handleOf(t, m, 1).Start)
	assert.True(t, whole.Window().IsZero())

	// Sprites share the source channel.
	assert.Equal(t, instance.StateInterrupted, coin.State())
	assert.Equal(t, []int64{jump.ID(), whole.ID()}, activeIDs(svc, testSprites))
}

func TestService_StartTimeOverridesSpriteWindow(t *testing.T) {
	svc, m := newTestService(t)
	require.NoError(t, svc.RegisterSource(testSprites, SourceOptions{
		Sprites: []Sprite{{ID: "coin", Start: time.Second, Duration: 300 * time.Millisecond}},
	}))

	svc.Play("coin", PlayProps{Duration: Ptr(100 * time.Millisecond)})

	h := handleOf(t, m, 0)
	assert.Equal(t, time.Second, h.Start)
	assert.Equal(t, 100*time.Millisecond, h.Duration)
}

func TestService_RegisterSource_Duplicates(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.RegisterSource(testExplosion, SourceOptions{ID: "boom"}))

	require.ErrorIs(t, svc.RegisterSource(testExplosion, SourceOptions{}), ErrDuplicateSource)
	require.ErrorIs(t, svc.RegisterSource(testLaser, SourceOptions{ID: "boom"}), ErrDuplicateAlias)
	require.ErrorIs(t, svc.RegisterSource(testLaser, SourceOptions{ID: testExplosion}), ErrDuplicateAlias)
	require.Error(t, svc.RegisterSource(testLaser, SourceOptions{Sprites: []Sprite{{ID: ""}}}))
}

func TestService_RegisterSource_KeyTakenByAlias(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.RegisterSource(testExplosion, SourceOptions{
		ID:      "boom",
		Sprites: []Sprite{{ID: "crack", Duration: time.Second}},
	}))

	require.ErrorIs(t, svc.RegisterSource("boom", SourceOptions{}), ErrDuplicateAlias)
	require.ErrorIs(t, svc.RegisterSource("crack", SourceOptions{MaxInstances: Ptr(2)}), ErrDuplicateAlias)

	assert.Equal(t, testExplosion, svc.Play("boom", PlayProps{}).Src())
	_, ok := svc.Snapshot().Channel("crack")
	assert.False(t, ok, "rejected source created no channel")
}

func TestService_RegisterSource_AfterImplicitChannel(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Play(testLaser, PlayProps{})
	svc.Play(testExplosion, PlayProps{})

	require.NoError(t, svc.RegisterSource(testLaser, SourceOptions{ID: "pew"}))
	err := svc.RegisterSource(testExplosion, SourceOptions{MaxInstances: Ptr(3)})

	require.ErrorIs(t, err, ErrDuplicateSource, "explicit limit cannot be applied to an existing channel")
	c, ok := svc.Snapshot().Channel(testExplosion)
	require.True(t, ok)
	assert.Equal(t, channel.DefaultMax, c.Max)
	assert.Equal(t, testLaser, svc.Play("pew", PlayProps{}).Src())
}

func TestService_BackendCreateFailure(t *testing.T) {
	svc, m := newTestService(t)
	cause := errors.New("file missing")
	m.SetCreateError(cause)

	inst := svc.Play(testLaser, PlayProps{})

	assert.Equal(t, instance.StateFailed, inst.State())
	require.ErrorIs(t, inst.Err(), ErrBackendStart)
	require.ErrorIs(t, inst.Err(), cause)
	assert.Empty(t, activeIDs(svc, testLaser), "slot released")
}

func TestService_BackendBeginFailureReleasesSlot(t *testing.T) {
	svc, m := newTestService(t)
	require.True(t, svc.RegisterChannel(testLaser, 1))
	m.SetBeginError(player.ErrNoBackend)

	failed := svc.Play(testLaser, PlayProps{})

	require.ErrorIs(t, failed.Err(), ErrBackendStart)
	require.ErrorIs(t, failed.Err(), player.ErrNoBackend)
	assert.True(t, handleOf(t, m, 0).Stopped())

	m.SetBeginError(nil)
	next := svc.Play(testLaser, PlayProps{})
	assert.Equal(t, instance.StateSucceeded, next.State(), "slot was not leaked")
}

func TestService_NoopBackendFails(t *testing.T) {
	svc := New(player.Noop{})
	defer svc.Close()

	inst := svc.Play(testLaser, PlayProps{})

	require.ErrorIs(t, inst.Err(), player.ErrNoBackend)
}

func TestService_Complete(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{})
	sub := inst.Subscribe()

	m.SimulateComplete(handleOf(t, m, 0))

	assert.Equal(t, instance.StateFinished, inst.State())
	assert.Empty(t, activeIDs(svc, testLaser))
	e := <-sub.Events
	assert.Equal(t, instance.EventComplete, e.Kind)
	<-sub.Done
}

func TestService_LoopAccounting(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{Loop: Ptr(2)})
	sub := inst.Subscribe()
	h := handleOf(t, m, 0)

	m.SimulateComplete(h)
	m.SimulateComplete(h)
	assert.Equal(t, instance.StateSucceeded, inst.State())
	assert.Equal(t, 0, inst.Loops())

	m.SimulateComplete(h)
	assert.Equal(t, instance.StateFinished, inst.State())
	assert.Equal(t, 3, h.Begins(), "one initial start and two restarts")

	var kinds []instance.EventKind
	for range 3 {
		kinds = append(kinds, (<-sub.Events).Kind)
	}
	assert.Equal(t, []instance.EventKind{instance.EventLoop, instance.EventLoop, instance.EventComplete}, kinds)
}

func TestService_LoopForever(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{Loop: Ptr(instance.LoopForever)})

	for range 10 {
		m.SimulateComplete(handleOf(t, m, 0))
	}

	assert.Equal(t, instance.StateSucceeded, inst.State())
	require.NoError(t, svc.Stop(inst))
}

func TestService_LoopRestartFailure(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{Loop: Ptr(1)})
	m.SetBeginError(errors.New("device lost"))

	m.SimulateComplete(handleOf(t, m, 0))

	assert.Equal(t, instance.StateFailed, inst.State())
	require.ErrorIs(t, inst.Err(), ErrBackendError)
}

func TestService_Stall(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{})

	m.SimulateStall(handleOf(t, m, 0))

	assert.Equal(t, instance.StateFailed, inst.State())
	require.ErrorIs(t, inst.Err(), ErrBackendStall)
	assert.Empty(t, activeIDs(svc, testLaser))
}

func TestService_BackendError(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{})
	cause := errors.New("decoder")

	m.SimulateError(handleOf(t, m, 0), cause)

	require.ErrorIs(t, inst.Err(), ErrBackendError)
	require.ErrorIs(t, inst.Err(), cause)
}

func TestService_SignalsForRetiredHandlesIgnored(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{})
	require.NoError(t, svc.Stop(inst))

	m.SimulateStall(handleOf(t, m, 0))
	m.SimulateComplete(&player.MockHandle{Src: "other"})

	assert.Equal(t, instance.StateFinished, inst.State())
	assert.NoError(t, inst.Err())
}

func TestService_PauseResume(t *testing.T) {
	svc, m := newTestService(t)
	require.True(t, svc.RegisterChannel(testLaser, 1))
	inst := svc.Play(testLaser, PlayProps{})
	h := handleOf(t, m, 0)
	h.SetPosition(300 * time.Millisecond)

	require.NoError(t, svc.Pause(inst))
	h.SetPosition(800 * time.Millisecond)

	assert.True(t, h.Paused())
	assert.True(t, inst.Paused())
	assert.Equal(t, 300*time.Millisecond, inst.Position())
	assert.Equal(t, instance.StateSucceeded, inst.State())

	blocked := svc.Play(testLaser, PlayProps{})
	assert.Equal(t, instance.StateFailed, blocked.State(), "paused instance still holds its slot")

	require.NoError(t, svc.Resume(inst))
	assert.False(t, h.Paused())
}

func TestService_Pause_PendingIsInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{Delay: Ptr(time.Hour)})

	require.ErrorIs(t, svc.Pause(inst), instance.ErrInvalidTransition)
	require.ErrorIs(t, svc.Resume(inst), instance.ErrInvalidTransition)
}

func TestService_Stop(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{})
	handleOf(t, m, 0).SetPosition(time.Second)

	require.NoError(t, svc.Stop(inst))

	assert.Equal(t, instance.StateFinished, inst.State())
	assert.Zero(t, inst.Position())
	assert.True(t, handleOf(t, m, 0).Stopped())
	assert.Empty(t, activeIDs(svc, testLaser))
	require.ErrorIs(t, svc.Stop(inst), instance.ErrInvalidTransition)
}

func TestService_UnknownInstance(t *testing.T) {
	svc, _ := newTestService(t)
	other, _ := newTestService(t)
	stranger := other.Play(testLaser, PlayProps{})

	require.ErrorIs(t, svc.Stop(stranger), ErrUnknownInstance)
	require.ErrorIs(t, svc.Pause(nil), ErrUnknownInstance)
	require.ErrorIs(t, svc.SetVolume(stranger, 1), ErrUnknownInstance)
}

func TestService_StopAll(t *testing.T) {
	svc, _ := newTestService(t)
	require.True(t, svc.RegisterChannel(testLaser, 2))
	a := svc.Play(testLaser, PlayProps{})
	b := svc.Play(testExplosion, PlayProps{})
	pending := svc.Play(testLaser, PlayProps{Delay: Ptr(time.Hour)})

	svc.StopAll()

	for _, inst := range []*instance.Instance{a, b, pending} {
		assert.Equal(t, instance.StateFinished, inst.State())
	}
	snap := svc.Snapshot()
	assert.Zero(t, snap.ActiveCount())
	assert.Zero(t, snap.Pending)
}

func TestService_InstanceControlsReachBackend(t *testing.T) {
	svc, m := newTestService(t)
	require.True(t, svc.RegisterChannel(testLaser, 1))
	inst := svc.Play(testLaser, PlayProps{})
	h := handleOf(t, m, 0)

	require.NoError(t, inst.SetVolume(0.2))
	require.NoError(t, inst.SetPan(-1))
	require.NoError(t, inst.Pause())
	assert.True(t, h.Paused())
	require.NoError(t, inst.Resume())
	require.NoError(t, inst.SetPosition(300*time.Millisecond))
	assert.InDelta(t, 0.2, h.Volume(), 1e-9)
	assert.InDelta(t, -1.0, h.Pan(), 1e-9)
	assert.False(t, h.Paused())
	assert.Contains(t, m.Calls(), "seek "+testLaser)

	require.NoError(t, inst.Stop())

	assert.Equal(t, instance.StateFinished, inst.State())
	assert.True(t, h.Stopped())
	assert.Zero(t, svc.Snapshot().ActiveCount())
	require.ErrorIs(t, inst.Stop(), instance.ErrInvalidTransition)

	next := svc.Play(testLaser, PlayProps{})
	assert.Equal(t, instance.StateSucceeded, next.State(), "slot freed by the stop")
	svc.StopAll()
	assert.True(t, handleOf(t, m, 1).Stopped())
}

func TestService_InstanceControlsAfterClose(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{})
	require.NoError(t, svc.Close())

	require.ErrorIs(t, inst.SetVolume(0.5), instance.ErrInvalidTransition)
	assert.True(t, handleOf(t, m, 0).Stopped())
}

func TestService_DelayedStart(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := player.NewMock()
		svc := New(m)
		defer svc.Close()

		inst := svc.Play(testLaser, PlayProps{Delay: Ptr(500 * time.Millisecond)})

		assert.Equal(t, instance.StateInited, inst.State())
		assert.True(t, inst.Pending())
		assert.Equal(t, 1, svc.Snapshot().Pending)
		assert.Empty(t, activeIDs(svc, testLaser), "no slot consumed during the delay")

		time.Sleep(499 * time.Millisecond)
		synctest.Wait()
		assert.Empty(t, m.Calls())

		time.Sleep(time.Millisecond)
		synctest.Wait()
		assert.Equal(t, instance.StateSucceeded, inst.State())
		assert.False(t, inst.Pending())
		assert.Equal(t, []int64{inst.ID()}, activeIDs(svc, testLaser))
	})
}

func TestService_DelayedStartCancelled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := player.NewMock()
		svc := New(m)
		defer svc.Close()
		inst := svc.Play(testLaser, PlayProps{Delay: Ptr(500 * time.Millisecond)})

		time.Sleep(100 * time.Millisecond)
		require.NoError(t, svc.Stop(inst))
		time.Sleep(time.Second)
		synctest.Wait()

		assert.Equal(t, instance.StateFinished, inst.State())
		assert.Empty(t, m.Calls(), "backend never invoked")
	})
}

func TestService_DelayedAdmissionEvaluatedAtExpiry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := player.NewMock()
		svc := New(m)
		defer svc.Close()
		require.True(t, svc.RegisterChannel(testLaser, 1))

		delayed := svc.Play(testLaser, PlayProps{Delay: Ptr(200 * time.Millisecond)})
		first := svc.Play(testLaser, PlayProps{})
		assert.Equal(t, instance.StateSucceeded, first.State(), "pending instance holds no slot")

		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		assert.Equal(t, instance.StateFailed, delayed.State())
		require.ErrorIs(t, delayed.Err(), ErrAdmissionDenied)
	})
}

func TestService_SetPositionOnPendingSetsStartOffset(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := player.NewMock()
		svc := New(m)
		defer svc.Close()
		inst := svc.Play(testLaser, PlayProps{Delay: Ptr(time.Second)})

		require.NoError(t, svc.SetPosition(inst, 400*time.Millisecond))
		time.Sleep(time.Second)
		synctest.Wait()

		assert.Equal(t, 400*time.Millisecond, handleOf(t, m, 0).Position())
	})
}

func TestService_VolumeAndMaster(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{Volume: Ptr(0.8)})
	h := handleOf(t, m, 0)

	svc.SetMasterVolume(0.5)
	assert.InDelta(t, 0.4, h.Volume(), 1e-9)

	require.NoError(t, svc.SetVolume(inst, 2))
	assert.InDelta(t, 1.0, inst.Volume(), 1e-9, "clamped")
	assert.InDelta(t, 0.5, h.Volume(), 1e-9)

	svc.SetMuted(true)
	assert.True(t, svc.Muted())
	assert.Zero(t, h.Volume())

	svc.SetMuted(false)
	assert.InDelta(t, 0.5, h.Volume(), 1e-9)

	svc.SetMasterVolume(-1)
	assert.Zero(t, svc.MasterVolume())
}

func TestService_SetPan(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{})

	require.NoError(t, svc.SetPan(inst, -4))
	assert.InDelta(t, -1.0, handleOf(t, m, 0).Pan(), 1e-9)

	m.SetPanError(player.ErrPanUnsupported)
	require.ErrorIs(t, svc.SetPan(inst, 0.5), player.ErrPanUnsupported)
	assert.InDelta(t, 0.5, inst.Pan(), 1e-9, "requested pan is kept")
}

func TestService_SetPosition_Seeks(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{})

	require.NoError(t, svc.SetPosition(inst, 1500*time.Millisecond))

	assert.Equal(t, 1500*time.Millisecond, inst.Position())
	assert.Contains(t, m.Calls(), "seek "+testLaser)
}

func TestService_Replay(t *testing.T) {
	svc, m := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{Loop: Ptr(3), Volume: Ptr(0.7)})
	h := handleOf(t, m, 0)
	h.SetPosition(600 * time.Millisecond)
	require.NoError(t, svc.Pause(inst))

	require.NoError(t, svc.Replay(inst, PlayProps{Volume: Ptr(0.3)}))

	assert.False(t, inst.Paused())
	assert.False(t, h.Paused())
	assert.InDelta(t, 0.3, h.Volume(), 1e-9)
	assert.Equal(t, 3, inst.Loops(), "loop defaults to the instance's own")
	assert.Equal(t, 600*time.Millisecond, inst.Position(), "offset defaults to the current position")

	require.NoError(t, svc.Stop(inst))
	require.ErrorIs(t, svc.Replay(inst, PlayProps{}), instance.ErrInvalidTransition)
}

func TestService_Replay_PendingIsInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	inst := svc.Play(testLaser, PlayProps{Delay: Ptr(time.Hour)})

	require.ErrorIs(t, svc.Replay(inst, PlayProps{}), instance.ErrInvalidTransition)
}

func TestService_RemoveSource(t *testing.T) {
	svc, m := newTestService(t)
	require.NoError(t, svc.RegisterSource(testExplosion, SourceOptions{ID: "boom", MaxInstances: Ptr(4)}))
	active := svc.Play("boom", PlayProps{})
	pending := svc.Play("boom", PlayProps{Delay: Ptr(time.Hour)})
	other := svc.Play(testLaser, PlayProps{})

	assert.True(t, svc.RemoveSource(testExplosion))
	assert.False(t, svc.RemoveSource(testExplosion))

	assert.Equal(t, instance.StateInterrupted, active.State())
	assert.Equal(t, instance.StateFinished, pending.State())
	assert.Equal(t, instance.StateSucceeded, other.State())
	assert.Contains(t, m.Unloaded(), testExplosion)
	_, ok := svc.Snapshot().Channel(testExplosion)
	assert.False(t, ok)

	// The alias is gone: "boom" is now just an unregistered source key.
	again := svc.Play("boom", PlayProps{})
	assert.Equal(t, "boom", again.Src())
}

func TestService_RemoveAllSources(t *testing.T) {
	svc, m := newTestService(t)
	require.NoError(t, svc.RegisterSource(testExplosion, SourceOptions{}))
	a := svc.Play(testExplosion, PlayProps{})
	b := svc.Play(testLaser, PlayProps{})

	svc.RemoveAllSources()

	assert.Equal(t, instance.StateInterrupted, a.State())
	assert.Equal(t, instance.StateInterrupted, b.State())
	assert.Empty(t, svc.Snapshot().Channels)
	assert.ElementsMatch(t, []string{testExplosion, testLaser}, m.Unloaded())
	require.NoError(t, svc.RegisterSource(testExplosion, SourceOptions{}), "registry cleared")
}

func TestService_Subscribe_ReceivesAllInstances(t *testing.T) {
	svc, m := newTestService(t)
	sub := svc.Subscribe()

	a := svc.Play(testLaser, PlayProps{})
	b := svc.Play(testExplosion, PlayProps{})
	m.SimulateComplete(handleOf(t, m, 1))

	got := []instance.Event{<-sub.Events, <-sub.Events, <-sub.Events}
	assert.Equal(t, a.ID(), got[0].ID)
	assert.Equal(t, instance.EventSucceeded, got[0].Kind)
	assert.Equal(t, b.ID(), got[1].ID)
	assert.Equal(t, instance.EventComplete, got[2].Kind)
	assert.Equal(t, testExplosion, got[2].Src)
}

func TestService_Close(t *testing.T) {
	m := player.NewMock()
	svc := New(m)
	sub := svc.Subscribe()
	playing := svc.Play(testLaser, PlayProps{})

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close(), "second close is a no-op")

	<-sub.Done
	assert.Equal(t, instance.StateFinished, playing.State())
	late := svc.Play(testLaser, PlayProps{})
	assert.Equal(t, instance.StateFailed, late.State())
	require.ErrorIs(t, late.Err(), ErrClosed)
}

func TestSnapshot_Helpers(t *testing.T) {
	snap := Snapshot{Channels: []ChannelSnapshot{
		{Src: "a", Active: []InstanceSnapshot{{ID: 1}, {ID: 2}}},
		{Src: "b", Active: []InstanceSnapshot{{ID: 3}}},
	}}

	c, ok := snap.Channel("b")
	assert.True(t, ok)
	assert.Equal(t, "b", c.Src)
	_, ok = snap.Channel("z")
	assert.False(t, ok)
	assert.Equal(t, 3, snap.ActiveCount())
}

func TestPlayProps_Or(t *testing.T) {
	p := PlayProps{Volume: Ptr(0.2)}.Or(PlayProps{Volume: Ptr(0.9), Pan: Ptr(1.0), Delay: Ptr(time.Second)})

	assert.InDelta(t, 0.2, *p.Volume, 1e-9)
	assert.InDelta(t, 1.0, *p.Pan, 1e-9)
	assert.Equal(t, time.Second, *p.Delay)
	assert.Nil(t, p.Loop)
}

func TestPlayProps_ResolveBuiltins(t *testing.T) {
	r := PlayProps{Delay: Ptr(-time.Second)}.resolve(instance.Window{Start: time.Second})

	assert.Equal(t, channel.InterruptNone, r.interrupt)
	assert.Zero(t, r.delay)
	assert.Zero(t, r.offset)
	assert.Zero(t, r.loop)
	assert.InDelta(t, 1.0, r.volume, 1e-9)
	assert.Zero(t, r.pan)
	assert.Equal(t, time.Second, r.window.Start)
}
