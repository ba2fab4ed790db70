package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/sidescan/internal/dispatch"
	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/params"
	"github.com/banshee-data/sidescan/internal/presets"
	"github.com/banshee-data/sidescan/internal/sonar"
	"github.com/banshee-data/sidescan/internal/timeutil"
)

// TrackCounter reports how many tracks the active project already holds.
type TrackCounter interface {
	TrackCount() (int, error)
}

// Config wires a Manager. Control and Presets are nil in browse-only mode.
type Config struct {
	Control  sonar.Control
	Presets  *presets.Registry
	GainCaps sonar.GainMode
	Counter  TrackCounter
	Prefix   string
	Clock    timeutil.Clock
	Metrics  *monitoring.Metrics
	Display  Display
}

// Manager is the track session state machine.
type Manager struct {
	ctl      sonar.Control
	dispatch *dispatch.Dispatcher
	presets  *presets.Registry
	gainCaps sonar.GainMode
	counter  TrackCounter
	prefix   string
	clock    timeutil.Clock
	metrics  *monitoring.Metrics

	state ConsoleState

	// seeded is set once the project track count has been read. seq is the
	// last number handed out and only ever grows.
	seeded bool
	seq    int
}

// NewManager returns a Manager in Idle with display settings from cfg.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	m := &Manager{
		ctl:      cfg.Control,
		dispatch: dispatch.New(cfg.Control, cfg.Metrics),
		presets:  cfg.Presets,
		gainCaps: cfg.GainCaps,
		counter:  cfg.Counter,
		prefix:   cfg.Prefix,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
	}
	m.state.Display = cfg.Display
	m.state.Connected = cfg.Control != nil
	m.metrics.SetSessionState(int(Idle))
	return m
}

// Snapshot returns a copy of the console state.
func (m *Manager) Snapshot() ConsoleState {
	return m.state
}

// Init applies the startup values: brightness locally, then signal, gain and
// range to the sonar through Arm. Without a sonar the values are only cached.
func (m *Manager) Init(gain params.GainCurve) error {
	if err := m.SetBrightness(InitialBrightness); err != nil {
		return err
	}
	p := ChannelParameters{Range: InitialRange, Gain: gain, Signal: InitialSignal}
	if m.ctl == nil {
		rt, err := params.ValidateRange(p.Range)
		if err != nil {
			return err
		}
		p.ReceiveTime = rt
		m.state.Params = p
		return nil
	}
	return m.Arm(p)
}

// SetRange validates a range in meters and commands the receive time.
func (m *Manager) SetRange(meters float64) error {
	rt, err := params.ValidateRange(meters)
	if err != nil {
		return err
	}
	if err := m.dispatch.ApplyToBoth(dispatch.ReceiveTime{Seconds: rt}); err != nil {
		return err
	}
	m.state.Params.Range = meters
	m.state.Params.ReceiveTime = rt
	monitoring.Diagf("[session] range %g m (receive time %g s)", meters, rt)
	return nil
}

// SetGain validates and commands a gain curve. The curve representation must
// be one the device reported.
func (m *Manager) SetGain(gc params.GainCurve) error {
	if err := m.checkGain(gc); err != nil {
		return err
	}
	if err := m.dispatch.ApplyToBoth(dispatch.Gain{Curve: gc}); err != nil {
		return err
	}
	m.state.Params.Gain = gc
	monitoring.Diagf("[session] gain %+v", gc)
	return nil
}

func (m *Manager) checkGain(gc params.GainCurve) error {
	if err := params.ValidateGainCurve(gc); err != nil {
		return err
	}
	if m.gainCaps != 0 && !m.gainCaps.Has(gc.Kind().Mode()) {
		return &sonar.ValidationError{Field: "gain mode", Value: gc.Kind(), Reason: "not supported by the sonar"}
	}
	return nil
}

// SetSignal selects a preset index on both boards.
func (m *Manager) SetSignal(i int) error {
	sel, err := m.resolveSignal(i)
	if err != nil {
		return err
	}
	if err := m.dispatch.ApplyToBoth(dispatch.Preset{Starboard: sel.StarboardID, Port: sel.PortID}); err != nil {
		return err
	}
	m.state.Params.Signal = i
	m.state.SignalLabel = sel.Label
	monitoring.Diagf("[session] signal %d (%s)", i, sel.Label)
	return nil
}

func (m *Manager) resolveSignal(i int) (presets.Selection, error) {
	if m.presets == nil {
		return presets.Selection{}, sonar.ErrNoSonar
	}
	return m.presets.Resolve(i)
}

// SetBrightness updates the display tone curve. It never touches the sonar.
func (m *Manager) SetBrightness(percent float64) error {
	tone, err := params.ValidateBrightness(percent)
	if err != nil {
		return err
	}
	m.state.Display.Brightness = percent
	m.state.Display.Tone = tone
	return nil
}

// Arm commands signal, gain and range in that order and caches them only when
// all three were accepted. Any failure leaves the cached parameters as they
// were and the session Idle.
func (m *Manager) Arm(p ChannelParameters) error {
	if m.state.Session.State == Recording {
		return &sonar.TransitionError{Event: "arm", State: Recording.String(), Err: errors.New("recording in progress")}
	}

	fail := func(err error) error {
		m.setState(Idle)
		monitoring.Opsf("[session] arm failed: %v", err)
		return &sonar.TransitionError{Event: "arm", State: Idle.String(), Err: err}
	}

	sel, err := m.resolveSignal(p.Signal)
	if err != nil {
		return fail(err)
	}
	if err := m.checkGain(p.Gain); err != nil {
		return fail(err)
	}
	rt, err := params.ValidateRange(p.Range)
	if err != nil {
		return fail(err)
	}
	err = m.dispatch.ApplyAll(
		dispatch.Preset{Starboard: sel.StarboardID, Port: sel.PortID},
		dispatch.Gain{Curve: p.Gain},
		dispatch.ReceiveTime{Seconds: rt},
	)
	if err != nil {
		return fail(err)
	}

	p.ReceiveTime = rt
	m.state.Params = p
	m.state.SignalLabel = sel.Label
	m.setState(Armed)
	return nil
}

// Start begins a new track. From Idle the cached parameters are re-armed
// first. The first start in the process reads the project track count; later
// starts number from memory. A failed start leaves the session Idle and does
// not give the number back.
func (m *Manager) Start() error {
	if m.ctl == nil {
		return sonar.ErrNoSonar
	}
	switch m.state.Session.State {
	case Recording:
		return &sonar.TransitionError{Event: "start", State: Recording.String(), Err: errors.New("already recording")}
	case Idle:
		if err := m.Arm(m.state.Params); err != nil {
			return err
		}
	}

	if !m.seeded {
		if m.counter == nil {
			return m.failStart(errors.New("no track counter"))
		}
		n, err := m.counter.TrackCount()
		if err != nil {
			return m.failStart(fmt.Errorf("count project tracks: %w", err))
		}
		m.seq = n
		m.seeded = true
	}
	m.seq++
	name := fmt.Sprintf("%s%d", m.prefix, m.seq)

	m.state.OpenTrack = ""
	if err := m.ctl.Start(name); err != nil {
		return m.failStart(fmt.Errorf("start track %s: %w", name, err))
	}

	m.state.Session = TrackSession{Name: name, Sequence: m.seq, State: Recording, StartedAt: m.clock.Now()}
	m.state.OpenTrack = name
	m.state.Follow = true
	m.state.CatalogLocked = true
	m.metrics.SetSessionState(int(Recording))
	m.metrics.IncTracksStarted()
	monitoring.Opsf("[session] recording %s", name)
	return nil
}

func (m *Manager) failStart(err error) error {
	m.setState(Idle)
	monitoring.Opsf("[session] start failed: %v", err)
	return &sonar.TransitionError{Event: "start", State: Idle.String(), Err: err}
}

// Stop ends the recording. The session returns to Idle and releases follow
// mode and the catalog even when the sonar rejects the stop command. Stop
// outside Recording does nothing.
func (m *Manager) Stop() error {
	if m.state.Session.State != Recording {
		return nil
	}
	err := m.ctl.Stop()

	m.setState(Idle)
	m.state.Follow = false
	m.state.CatalogLocked = false

	if err != nil {
		monitoring.Opsf("[session] stop %s: %v", m.state.Session.Name, err)
		return &sonar.TransitionError{Event: "stop", State: Idle.String(), Err: err}
	}
	monitoring.Opsf("[session] stopped %s after %s", m.state.Session.Name, m.clock.Since(m.state.Session.StartedAt).Round(time.Second))
	return nil
}

// SetFollow turns live follow mode on or off. While recording follow mode is
// forced on and a request to turn it off is ignored.
func (m *Manager) SetFollow(on bool) {
	if m.state.Session.State == Recording {
		m.state.Follow = true
		return
	}
	m.state.Follow = on
}

// SelectTrack opens a track for browsing with follow mode on. Selection is
// refused while recording.
func (m *Manager) SelectTrack(name string) error {
	if m.state.CatalogLocked {
		return sonar.ErrCatalogLocked
	}
	m.state.OpenTrack = name
	m.state.Follow = true
	return nil
}

// Handle applies one event.
func (m *Manager) Handle(ev Event) error {
	p := m.state.Params
	switch ev.Kind {
	case EventStepRange:
		return m.SetRange(params.StepRange(p.Range, ev.Dir))
	case EventSetRange:
		return m.SetRange(ev.Value)
	case EventStepGain:
		gc, err := params.StepGain(p.Gain, ev.Gain, ev.Dir)
		if err != nil {
			return err
		}
		return m.SetGain(gc)
	case EventStepSignal:
		return m.SetSignal(params.StepSignal(p.Signal, ev.Dir))
	case EventSetSignal:
		return m.SetSignal(int(ev.Value))
	case EventStepBrightness:
		return m.SetBrightness(params.StepBrightness(m.state.Display.Brightness, ev.Dir))
	case EventSetBrightness:
		return m.SetBrightness(ev.Value)
	case EventStart:
		return m.Start()
	case EventStop:
		return m.Stop()
	case EventFollow:
		m.SetFollow(ev.On)
		return nil
	case EventSelectTrack:
		return m.SelectTrack(ev.Track)
	case EventTracksChanged:
		return nil
	default:
		return fmt.Errorf("unknown event %v", ev.Kind)
	}
}

func (m *Manager) setState(s State) {
	m.state.Session.State = s
	m.metrics.SetSessionState(int(s))
}
