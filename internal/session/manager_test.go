package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sidescan/internal/params"
	"github.com/banshee-data/sidescan/internal/presets"
	"github.com/banshee-data/sidescan/internal/sonar"
	fake "github.com/banshee-data/sidescan/internal/testutil"
	"github.com/banshee-data/sidescan/internal/timeutil"
)

type counter struct {
	n     int
	calls int
	err   error
}

func (c *counter) TrackCount() (int, error) {
	c.calls++
	return c.n, c.err
}

var t0 = time.Date(2024, 7, 3, 8, 30, 0, 0, time.UTC)

func newManager(t *testing.T, existing int) (*Manager, *fake.FakeSonar, *counter, *timeutil.MockClock) {
	t.Helper()
	dev := fake.NewFakeSonar()
	reg, err := presets.Load(dev)
	require.NoError(t, err)
	c := &counter{n: existing}
	clock := timeutil.NewMockClock(t0)
	m := NewManager(Config{
		Control:  dev,
		Presets:  reg,
		GainCaps: sonar.GainAuto | sonar.GainLinearDB,
		Counter:  c,
		Prefix:   "SS",
		Clock:    clock,
	})
	require.NoError(t, m.Init(params.AutoGain{Level: 0.5, Sensitivity: 0.6}))
	dev.ResetCalls()
	return m, dev, c, clock
}

func TestInitArmsWithDefaults(t *testing.T) {
	m, _, _, _ := newManager(t, 0)
	s := m.Snapshot()

	want := ChannelParameters{
		Range:       150,
		ReceiveTime: 150.0 / 750.0,
		Gain:        params.AutoGain{Level: 0.5, Sensitivity: 0.6},
		Signal:      1,
	}
	if diff := cmp.Diff(want, s.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Armed, s.Session.State)
	assert.Equal(t, 20.0, s.Display.Brightness)
	assert.Equal(t, "lfm-100k", s.SignalLabel)
}

func TestArmOrder(t *testing.T) {
	m, dev, _, _ := newManager(t, 0)
	require.NoError(t, m.Arm(m.Snapshot().Params))

	var got []string
	for _, c := range dev.Calls() {
		got = append(got, c.Method+"/"+c.Target)
	}
	want := []string{
		"SetPreset/starboard", "SetPreset/port",
		"SetGainAuto/starboard", "SetGainAuto/port",
		"SetReceiveTime/starboard", "SetReceiveTime/port",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("arm order mismatch (-want +got):\n%s", diff)
	}
}

func TestRangeRejectedKeepsParams(t *testing.T) {
	m, dev, _, _ := newManager(t, 0)
	before := m.Snapshot().Params

	for _, bad := range []float64{0.5, 151} {
		err := m.SetRange(bad)
		var verr *sonar.ValidationError
		require.True(t, errors.As(err, &verr))
	}
	// Stepping up from the maximum is rejected too.
	require.Error(t, m.Handle(Event{Kind: EventStepRange, Dir: params.Increase}))

	assert.Equal(t, before, m.Snapshot().Params)
	assert.Empty(t, dev.Calls(), "rejected values never reach the sonar")
}

func TestStarboardFailureKeepsParams(t *testing.T) {
	m, dev, _, _ := newManager(t, 0)
	before := m.Snapshot()

	dev.FailOn("SetReceiveTime", "starboard", nil)
	err := m.SetRange(100)
	var aerr *sonar.ApplyError
	require.True(t, errors.As(err, &aerr))

	if diff := cmp.Diff(before, m.Snapshot()); diff != "" {
		t.Errorf("state changed after starboard failure (-before +after):\n%s", diff)
	}
}

func TestPortFailureKeepsParams(t *testing.T) {
	m, dev, _, _ := newManager(t, 0)
	before := m.Snapshot().Params

	dev.FailOn("SetPreset", "port", nil)
	err := m.SetSignal(2)
	var perr *sonar.PartialApplyError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, before, m.Snapshot().Params)
}

func TestStepping(t *testing.T) {
	m, _, _, _ := newManager(t, 0)

	require.NoError(t, m.Handle(Event{Kind: EventStepRange, Dir: params.Decrease}))
	assert.Equal(t, 140.0, m.Snapshot().Params.Range)
	assert.Equal(t, 140.0/750.0, m.Snapshot().Params.ReceiveTime)

	require.NoError(t, m.Handle(Event{Kind: EventStepGain, Gain: params.GainLevel, Dir: params.Increase}))
	assert.InDelta(t, 0.6, m.Snapshot().Params.Gain.(params.AutoGain).Level, 1e-12)

	require.NoError(t, m.Handle(Event{Kind: EventStepSignal, Dir: params.Increase}))
	assert.Equal(t, 2, m.Snapshot().Params.Signal)
	assert.Equal(t, "lfm-300k", m.Snapshot().SignalLabel)

	require.Error(t, m.Handle(Event{Kind: EventSetSignal, Value: 0}), "index 0 is reserved")
	require.Error(t, m.Handle(Event{Kind: EventSetSignal, Value: 4}), "out of bounds")

	require.NoError(t, m.Handle(Event{Kind: EventStepBrightness, Dir: params.Increase}))
	assert.Equal(t, 30.0, m.Snapshot().Display.Brightness)

	require.Error(t, m.Handle(Event{Kind: EventStepGain, Gain: params.GainSlope, Dir: params.Increase}))
}

func TestGainModeMustBeSupported(t *testing.T) {
	m, _, _, _ := newManager(t, 0)
	m.gainCaps = sonar.GainAuto
	err := m.SetGain(params.LinearGain{Gain0: 0, Slope: 1})
	var verr *sonar.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestTrackNumbering(t *testing.T) {
	m, dev, c, clock := newManager(t, 7)

	require.NoError(t, m.Start())
	s := m.Snapshot()
	assert.Equal(t, "SS8", s.Session.Name)
	assert.Equal(t, Recording, s.Session.State)
	assert.Equal(t, t0, s.Session.StartedAt)
	assert.True(t, s.Follow)
	assert.True(t, s.CatalogLocked)
	assert.Equal(t, "SS8", s.OpenTrack)

	clock.Advance(time.Minute)
	require.NoError(t, m.Stop())
	s = m.Snapshot()
	assert.Equal(t, Idle, s.Session.State)
	assert.False(t, s.Follow)
	assert.False(t, s.CatalogLocked)

	require.NoError(t, m.Start())
	assert.Equal(t, "SS9", m.Snapshot().Session.Name)
	assert.Equal(t, 1, c.calls, "track count is read once")

	var started []any
	for _, call := range dev.CallsTo("Start") {
		started = append(started, call.Args[0])
	}
	assert.Equal(t, []any{"SS8", "SS9"}, started)
}

func TestStartFailureRevertsToIdleAndKeepsNumber(t *testing.T) {
	m, dev, _, _ := newManager(t, 2)

	dev.FailOn("Start", "", nil)
	err := m.Start()
	var terr *sonar.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "idle", terr.State)

	s := m.Snapshot()
	assert.Equal(t, Idle, s.Session.State, "failed start reverts to Idle, not Armed")
	assert.False(t, s.Follow)
	assert.False(t, s.CatalogLocked)

	dev.ClearFailures()
	require.NoError(t, m.Start())
	assert.Equal(t, "SS4", m.Snapshot().Session.Name, "SS3 is never reused")
}

func TestStartFromIdleRearms(t *testing.T) {
	m, dev, _, _ := newManager(t, 0)
	require.NoError(t, m.Start())
	require.NoError(t, m.Stop())
	dev.ResetCalls()

	dev.FailOn("SetGainAuto", "starboard", nil)
	err := m.Start()
	require.Error(t, err)
	assert.Empty(t, dev.CallsTo("Start"), "start is not issued when arming fails")
	assert.Equal(t, Idle, m.Snapshot().Session.State)
}

func TestCountFailure(t *testing.T) {
	m, _, c, _ := newManager(t, 0)
	c.err = errors.New("database locked")
	require.Error(t, m.Start())
	assert.Equal(t, Idle, m.Snapshot().Session.State)

	c.err = nil
	c.n = 5
	require.NoError(t, m.Start())
	assert.Equal(t, "SS6", m.Snapshot().Session.Name)
}

func TestStopRejectedStillIdle(t *testing.T) {
	m, dev, _, _ := newManager(t, 0)
	require.NoError(t, m.Start())

	dev.FailOn("Stop", "", nil)
	err := m.Stop()
	require.Error(t, err)
	s := m.Snapshot()
	assert.Equal(t, Idle, s.Session.State)
	assert.False(t, s.Follow)
	assert.False(t, s.CatalogLocked)

	// Stop outside Recording is a no-op.
	dev.ResetCalls()
	require.NoError(t, m.Stop())
	assert.Empty(t, dev.Calls())
}

func TestFollowForcedWhileRecording(t *testing.T) {
	m, _, _, _ := newManager(t, 0)

	m.SetFollow(true)
	m.SetFollow(false)
	assert.False(t, m.Snapshot().Follow)

	require.NoError(t, m.Start())
	require.NoError(t, m.Handle(Event{Kind: EventFollow, On: false}))
	assert.True(t, m.Snapshot().Follow, "follow cannot be released while recording")
}

func TestSelectTrack(t *testing.T) {
	m, _, _, _ := newManager(t, 4)
	require.NoError(t, m.SelectTrack("SS1"))
	s := m.Snapshot()
	assert.Equal(t, "SS1", s.OpenTrack)
	assert.True(t, s.Follow)

	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.SelectTrack("SS1"), sonar.ErrCatalogLocked)
	assert.Equal(t, "SS5", m.Snapshot().OpenTrack, "the recording track stays open")
}

func TestRecordingRejectsArmAndStart(t *testing.T) {
	m, _, _, _ := newManager(t, 0)
	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
	assert.Error(t, m.Arm(m.Snapshot().Params))
	assert.Equal(t, Recording, m.Snapshot().Session.State)
}

func TestBrowseOnly(t *testing.T) {
	m := NewManager(Config{Prefix: "SS", Counter: &counter{}})
	require.NoError(t, m.Init(params.AutoGain{Level: 0.5, Sensitivity: 0.6}))

	s := m.Snapshot()
	assert.False(t, s.Connected)
	assert.Equal(t, Idle, s.Session.State)
	assert.Equal(t, 150.0, s.Params.Range)

	assert.ErrorIs(t, m.SetRange(100), sonar.ErrNoSonar)
	assert.ErrorIs(t, m.SetSignal(1), sonar.ErrNoSonar)
	assert.ErrorIs(t, m.Handle(Event{Kind: EventStart}), sonar.ErrNoSonar)
	assert.NoError(t, m.SetBrightness(60))
	assert.NoError(t, m.SelectTrack("SS1"))
}
