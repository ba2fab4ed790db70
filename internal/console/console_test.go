package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sidescan/internal/catalog"
	"github.com/banshee-data/sidescan/internal/events"
	"github.com/banshee-data/sidescan/internal/params"
	"github.com/banshee-data/sidescan/internal/presets"
	"github.com/banshee-data/sidescan/internal/session"
	"github.com/banshee-data/sidescan/internal/sonar"
	fake "github.com/banshee-data/sidescan/internal/testutil"
	"github.com/banshee-data/sidescan/internal/timeutil"
)

var epoch = time.Date(2024, 8, 1, 6, 0, 0, 0, time.UTC)

// memTracks is an in-memory project: it counts and lists tracks and records
// a new one whenever the sonar starts.
type memTracks struct {
	mu     sync.Mutex
	tracks []catalog.TrackInfo
}

func (m *memTracks) TrackCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks), nil
}

func (m *memTracks) Tracks() ([]catalog.TrackInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]catalog.TrackInfo(nil), m.tracks...), nil
}

func (m *memTracks) add(name string, minutes int, raw bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := catalog.SourceInfo{Raw: raw, Computed: !raw}
	m.tracks = append(m.tracks, catalog.TrackInfo{
		Name:    name,
		Created: epoch.Add(time.Duration(minutes) * time.Minute),
		Sources: map[sonar.Source]catalog.SourceInfo{sonar.Starboard: info, sonar.Port: info},
	})
}

type recorder struct {
	mu  sync.Mutex
	evs []events.SessionEvent
}

func (r *recorder) Publish(ev events.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, ev)
	return nil
}

func (r *recorder) Close() {}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.evs {
		out = append(out, ev.Type)
	}
	return out
}

func startConsole(t *testing.T, policy catalog.Policy) (*Console, *fake.FakeSonar, *memTracks, *recorder) {
	t.Helper()
	dev := fake.NewFakeSonar()
	reg, err := presets.Load(dev)
	require.NoError(t, err)

	store := &memTracks{}
	store.add("SS1", 0, true)
	store.add("SS2", 10, false)

	clock := timeutil.NewMockClock(epoch.Add(time.Hour))
	mgr := session.NewManager(session.Config{
		Control: dev, Presets: reg, GainCaps: sonar.GainAuto,
		Counter: store, Prefix: "SS", Clock: clock,
	})
	require.NoError(t, mgr.Init(params.AutoGain{Level: 0.5, Sensitivity: 0.6}))

	rec := &recorder{}
	c := New(Options{Manager: mgr, Tracks: store, Policy: policy, Publisher: rec, Project: "harbour", Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	})
	return c, dev, store, rec
}

func do(t *testing.T, c *Console, cmd string) (Snapshot, error) {
	t.Helper()
	ev, err := ParseCommand(cmd)
	require.NoError(t, err)
	return c.Do(context.Background(), ev)
}

func TestInitialCatalog(t *testing.T) {
	c, _, _, _ := startConsole(t, catalog.RawOrComputed)
	snap, err := c.State(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Catalog.Entries, 2)
	assert.Equal(t, "SS2", snap.Catalog.Entries[0].Name)
	assert.Equal(t, -1, snap.Catalog.Selected)

	c2, _, _, _ := startConsole(t, catalog.RawOnly)
	snap, err = c2.State(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Catalog.Entries, 1)
	assert.Equal(t, "SS1", snap.Catalog.Entries[0].Name)
}

func TestRecordingLifecycle(t *testing.T) {
	c, dev, store, rec := startConsole(t, catalog.RawOrComputed)

	snap, err := do(t, c, "select SS1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Catalog.Selected)

	snap, err = do(t, c, "start")
	require.NoError(t, err)
	assert.Equal(t, "SS3", snap.State.Session.Name)
	assert.Equal(t, -1, snap.Catalog.Selected, "new track not listed yet")
	assert.Equal(t, "SS3", dev.Recording)

	_, err = do(t, c, "select SS1")
	assert.ErrorIs(t, err, sonar.ErrCatalogLocked)

	store.add("SS3", 60, true)
	require.NoError(t, c.TracksChanged(context.Background()))
	snap, err = c.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SS3", snap.Catalog.SelectedName(), "recording track re-selected by name")

	snap, err = do(t, c, "follow off")
	require.NoError(t, err)
	assert.True(t, snap.State.Follow)

	snap, err = do(t, c, "stop")
	require.NoError(t, err)
	assert.False(t, snap.State.Follow)
	assert.Equal(t, session.Idle, snap.State.Session.State)

	snap, err = do(t, c, "start")
	require.NoError(t, err)
	assert.Equal(t, "SS4", snap.State.Session.Name)

	assert.Equal(t, []string{"recording", "idle", "recording"}, rec.types())
}

func TestStartFailurePublished(t *testing.T) {
	c, dev, _, rec := startConsole(t, catalog.RawOrComputed)
	dev.FailOn("Start", "", nil)

	snap, err := do(t, c, "start")
	var terr *sonar.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, session.Idle, snap.State.Session.State)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.evs, 1)
	assert.Equal(t, events.TypeStartFailed, rec.evs[0].Type)
	assert.Equal(t, "harbour", rec.evs[0].Project)
	assert.NotEmpty(t, rec.evs[0].Error)
}

func TestParameterCommands(t *testing.T) {
	c, dev, _, _ := startConsole(t, catalog.RawOrComputed)

	snap, err := do(t, c, "range-")
	require.NoError(t, err)
	assert.Equal(t, 140.0, snap.State.Params.Range)

	before := snap.State.Params
	dev.FailOn("SetReceiveTime", "starboard", nil)
	snap, err = do(t, c, "range 50")
	require.Error(t, err)
	assert.Equal(t, before, snap.State.Params)

	_, err = do(t, c, "select SS9")
	assert.Error(t, err, "unknown track")
}

func TestDoCancelled(t *testing.T) {
	c := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Do(ctx, session.Event{Kind: session.EventStop})
	assert.ErrorIs(t, err, context.Canceled)
}
