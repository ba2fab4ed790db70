// Package console serializes operator commands and collaborator
// notifications onto a single goroutine that owns the session Manager and
// the track catalog.
package console

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/sidescan/internal/catalog"
	"github.com/banshee-data/sidescan/internal/events"
	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/session"
	"github.com/banshee-data/sidescan/internal/timeutil"
)

// TrackSource lists the tracks of the active project.
type TrackSource interface {
	Tracks() ([]catalog.TrackInfo, error)
}

// Snapshot is the state after an event was handled.
type Snapshot struct {
	State   session.ConsoleState `json:"state"`
	Catalog catalog.Catalog      `json:"catalog"`
}

// Options wires a Console.
type Options struct {
	Manager   *session.Manager
	Tracks    TrackSource
	Policy    catalog.Policy
	Publisher events.Publisher
	Project   string
	Clock     timeutil.Clock
	Metrics   *monitoring.Metrics
}

type request struct {
	ev    *session.Event
	reply chan response
}

type response struct {
	snap Snapshot
	err  error
}

// Console is the event loop. Every method other than Run may be called from
// any goroutine once Run has started.
type Console struct {
	mgr     *session.Manager
	tracks  TrackSource
	policy  catalog.Policy
	pub     events.Publisher
	project string
	clock   timeutil.Clock
	metrics *monitoring.Metrics

	reqs    chan request
	catalog catalog.Catalog
}

// New returns a Console. Run must be called before Do.
func New(opts Options) *Console {
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Console{
		mgr:     opts.Manager,
		tracks:  opts.Tracks,
		policy:  opts.Policy,
		pub:     opts.Publisher,
		project: opts.Project,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		reqs:    make(chan request),
		catalog: catalog.Catalog{Selected: -1},
	}
}

// Run handles events until ctx is cancelled. The catalog is built once before
// the first event.
func (c *Console) Run(ctx context.Context) error {
	if err := c.rebuild(); err != nil {
		monitoring.Opsf("[console] initial catalog: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-c.reqs:
			var resp response
			if req.ev != nil {
				resp.err = c.handle(*req.ev)
			}
			resp.snap = c.snapshot()
			req.reply <- resp
		}
	}
}

// Do submits an event and waits for the resulting state. The returned
// Snapshot is valid even when err is not nil.
func (c *Console) Do(ctx context.Context, ev session.Event) (Snapshot, error) {
	return c.submit(ctx, &ev)
}

// State returns the current state without changing it.
func (c *Console) State(ctx context.Context) (Snapshot, error) {
	return c.submit(ctx, nil)
}

// TracksChanged asks the loop to rebuild the catalog.
func (c *Console) TracksChanged(ctx context.Context) error {
	_, err := c.Do(ctx, session.Event{Kind: session.EventTracksChanged})
	return err
}

func (c *Console) submit(ctx context.Context, ev *session.Event) (Snapshot, error) {
	req := request{ev: ev, reply: make(chan response, 1)}
	select {
	case c.reqs <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	// The loop always replies once it accepted the request.
	resp := <-req.reply
	return resp.snap, resp.err
}

func (c *Console) handle(ev session.Event) error {
	before := c.mgr.Snapshot()

	switch ev.Kind {
	case session.EventTracksChanged:
		return c.rebuild()
	case session.EventSelectTrack:
		if !before.CatalogLocked && c.catalog.Index(ev.Track) < 0 {
			return fmt.Errorf("unknown track %q", ev.Track)
		}
	}

	err := c.mgr.Handle(ev)
	after := c.mgr.Snapshot()

	if after.OpenTrack != before.OpenTrack {
		c.catalog.Selected = c.catalog.Index(after.OpenTrack)
	}
	c.publish(ev, before, after, err)

	if err != nil {
		monitoring.Opsf("[console] %s: %v", ev.Kind, err)
	}
	return err
}

func (c *Console) publish(ev session.Event, before, after session.ConsoleState, err error) {
	var typ string
	switch {
	case ev.Kind == session.EventStart && err != nil:
		typ = events.TypeStartFailed
	case after.Session.State == before.Session.State:
		return
	case after.Session.State == session.Armed:
		typ = events.TypeArmed
	case after.Session.State == session.Recording:
		typ = events.TypeRecording
	default:
		typ = events.TypeIdle
	}

	out := events.SessionEvent{
		Type:     typ,
		Project:  c.project,
		Track:    after.Session.Name,
		Sequence: after.Session.Sequence,
		Time:     c.clock.Now(),
	}
	if err != nil {
		out.Error = err.Error()
	}
	if perr := c.pub.Publish(out); perr != nil {
		monitoring.Diagf("[console] publish %s event: %v", typ, perr)
	}
}

// rebuild recomputes the catalog from the track source. On error the
// previous catalog is kept.
func (c *Console) rebuild() error {
	if c.tracks == nil {
		return errors.New("no track source")
	}
	tracks, err := c.tracks.Tracks()
	if err != nil {
		return fmt.Errorf("list tracks: %w", err)
	}
	c.catalog = catalog.Build(tracks, c.policy, c.mgr.Snapshot().OpenTrack)
	c.metrics.SetCatalogEntries(len(c.catalog.Entries))
	monitoring.Diagf("[console] catalog rebuilt: %d of %d tracks listed", len(c.catalog.Entries), len(tracks))
	return nil
}

func (c *Console) snapshot() Snapshot {
	cat := c.catalog
	cat.Entries = append([]catalog.Entry{}, cat.Entries...)
	return Snapshot{State: c.mgr.Snapshot(), Catalog: cat}
}
