package sonarlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/sidescan/internal/catalog"
	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/sonar"
	"github.com/banshee-data/sidescan/internal/timeutil"
)

// TrackRecorder is where the simulated device writes the tracks it records.
type TrackRecorder interface {
	CreateTrack(name string, created time.Time) (string, error)
	MarkSource(track string, src sonar.Source, info catalog.SourceInfo) error
}

// ProjectOpener returns the recorder for a named project.
type ProjectOpener func(name string) (TrackRecorder, error)

// BoardState is the commanded state of one simulated board.
type BoardState struct {
	GeneratorEnabled bool
	GainEnabled      bool
	Preset           uint32
	Level            float64
	Sensitivity      float64
	Gain0            float64
	Slope            float64
	ReceiveTime      float64
	Position         [6]float64
}

// SensorState is the configured state of one simulated sensor port.
type SensorState struct {
	Enabled    bool
	Channel    uint64
	TimeOffset int64
	Device     uint64
	Mode       uint64
	Address    uint64
	UDPPort    uint64
	Position   [6]float64
}

// Device is an in-process sonar that answers the line protocol from a
// Profile. Recorded tracks go to the ProjectOpener when one is set.
type Device struct {
	profile Profile
	genMode sonar.GeneratorMode
	gain    sonar.GainMode
	open    ProjectOpener
	clock   timeutil.Clock

	mu        sync.Mutex
	master    bool
	params    map[string]string
	boards    [2]BoardState
	sensors   map[string]*SensorState
	project   string
	recorder  TrackRecorder
	recording string
}

// NewDevice creates a simulated device. open may be nil, in which case
// tracks are accepted but stored nowhere.
func NewDevice(p Profile, open ProjectOpener, clock timeutil.Clock) (*Device, error) {
	gen, err := p.generatorMode()
	if err != nil {
		return nil, err
	}
	gain, err := p.gainMode()
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	d := &Device{
		profile: p,
		genMode: gen,
		gain:    gain,
		open:    open,
		clock:   clock,
		params:  make(map[string]string),
		sensors: make(map[string]*SensorState, len(p.Sensors)),
	}
	for _, s := range p.Sensors {
		d.sensors[s.Name] = &SensorState{}
	}
	return d, nil
}

// Serve answers request lines read from rw until it is exhausted or ctx is
// done.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter) error {
	scan := bufio.NewScanner(rw)
	for scan.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reply, ok := d.Handle(scan.Text())
		if !ok {
			continue
		}
		if _, err := io.WriteString(rw, reply+"\n"); err != nil {
			return err
		}
	}
	if err := scan.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

// Handle answers one request line. Lines without a request id get no reply.
func (d *Device) Handle(line string) (string, bool) {
	req, err := ParseRequest(line)
	if err != nil {
		monitoring.Diagf("[sim] ignoring %q: %v", line, err)
		return "", false
	}
	if msg, ok := d.profile.Fail[req.Verb+" "+req.Path]; ok {
		return FormatErr(req.ID, msg), true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	fields, err := d.dispatch(req)
	if err != nil {
		return FormatErr(req.ID, err.Error()), true
	}
	return FormatOK(req.ID, fields...), true
}

func (d *Device) dispatch(req Request) ([]any, error) {
	if req.Verb == VerbMaster {
		d.master = true
		return nil, nil
	}
	if !d.master && req.Verb != VerbGet && req.Verb != VerbList {
		return nil, errors.New("not master")
	}

	switch req.Path {
	case "/project":
		return nil, d.setProject(req)
	case "/track":
		return nil, d.track(req)
	case "/sensors":
		if req.Verb != VerbList {
			break
		}
		names := make([]any, 0, len(d.profile.Sensors))
		for _, s := range d.profile.Sensors {
			names = append(names, s.Name)
		}
		return names, nil
	}
	if name, ok := strings.CutPrefix(req.Path, "/parameters/"); ok && name != "" && req.Verb == VerbSet {
		if len(req.Args) != 1 {
			return nil, errors.New("want 1 value")
		}
		d.params[name] = req.Args[0]
		return nil, nil
	}
	if fields, handled, err := d.board(req); handled {
		return fields, err
	}
	if fields, handled, err := d.sensor(req); handled {
		return fields, err
	}
	return nil, fmt.Errorf("unknown request %s %s", req.Verb, req.Path)
}

func (d *Device) board(req Request) ([]any, bool, error) {
	var block, name, leaf string
	parts := splitPath(req.Path)
	if len(parts) < 2 {
		return nil, false, nil
	}
	block, name = parts[0], parts[1]
	if len(parts) > 2 {
		leaf = parts[2]
	}
	src, err := sonar.ParseSource(name)
	if err != nil {
		return nil, false, nil
	}
	b := &d.boards[src]

	switch block + "/" + leaf + "/" + req.Verb {
	case "generator/capabilities/GET":
		return []any{uint8(d.genMode)}, true, nil
	case "generator//ENABLE":
		b.GeneratorEnabled = true
		return nil, true, nil
	case "generator/presets/LIST":
		return FormatEnum(d.presets(src)), true, nil
	case "generator/preset/SET":
		id, err := d.argUint(req, 0, 32)
		if err != nil {
			return nil, true, err
		}
		if !b.GeneratorEnabled {
			return nil, true, errors.New("generator disabled")
		}
		if _, ok := findEnum(d.presets(src), uint32(id)); !ok || id == 0 {
			return nil, true, fmt.Errorf("no preset %d", id)
		}
		b.Preset = uint32(id)
		return nil, true, nil
	case "gain/capabilities/GET":
		return []any{uint8(d.gain)}, true, nil
	case "gain//ENABLE":
		b.GainEnabled = true
		return nil, true, nil
	case "gain/range/GET":
		return []any{d.profile.GainRange[0], d.profile.GainRange[1]}, true, nil
	case "gain/auto/SET":
		v, err := argFloats(req, 2)
		if err != nil {
			return nil, true, err
		}
		if !d.gain.Has(sonar.GainAuto) || !b.GainEnabled {
			return nil, true, errors.New("auto gain unavailable")
		}
		b.Level, b.Sensitivity = v[0], v[1]
		return nil, true, nil
	case "gain/linear-db/SET":
		v, err := argFloats(req, 2)
		if err != nil {
			return nil, true, err
		}
		if !d.gain.Has(sonar.GainLinearDB) || !b.GainEnabled {
			return nil, true, errors.New("linear gain unavailable")
		}
		b.Gain0, b.Slope = v[0], v[1]
		return nil, true, nil
	case "receiver/time/SET":
		v, err := argFloats(req, 1)
		if err != nil {
			return nil, true, err
		}
		if v[0] <= 0 {
			return nil, true, errors.New("receive time must be positive")
		}
		b.ReceiveTime = v[0]
		return nil, true, nil
	case "antenna/position/SET":
		v, err := argFloats(req, 6)
		if err != nil {
			return nil, true, err
		}
		copy(b.Position[:], v)
		return nil, true, nil
	}
	return nil, false, nil
}

func (d *Device) sensor(req Request) ([]any, bool, error) {
	parts := splitPath(req.Path)
	if len(parts) == 0 || parts[0] != "sensor" {
		return nil, false, nil
	}
	if len(req.Args) == 0 {
		return nil, true, errors.New("missing port name")
	}
	prof, ok := d.sensorProfile(req.Args[0])
	if !ok {
		return nil, true, fmt.Errorf("no port %q", req.Args[0])
	}
	st := d.sensors[prof.Name]
	leaf := ""
	if len(parts) > 1 {
		leaf = parts[1]
	}
	rest := Request{ID: req.ID, Verb: req.Verb, Path: req.Path, Args: req.Args[1:]}

	switch leaf + "/" + req.Verb {
	case "/ENABLE":
		st.Enabled = true
		return nil, true, nil
	case "/DISABLE":
		st.Enabled = false
		return nil, true, nil
	case "type/GET":
		return []any{sonar.ParsePortType(prof.Type).String()}, true, nil
	case "uart-devices/LIST":
		return FormatEnum(prof.UARTDevices), true, nil
	case "uart-modes/LIST":
		return FormatEnum(prof.UARTModes), true, nil
	case "ip-addresses/LIST":
		return FormatEnum(prof.IPAddresses), true, nil
	case "virtual/SET", "uart/SET", "udp-ip/SET":
		if sonar.ParsePortType(prof.Type).String() != leaf {
			return nil, true, fmt.Errorf("port %q is not %s", prof.Name, leaf)
		}
		return nil, true, d.setSensorParams(rest, prof, st, leaf)
	case "position/SET":
		v, err := argFloats(rest, 6)
		if err != nil {
			return nil, true, err
		}
		copy(st.Position[:], v)
		return nil, true, nil
	}
	return nil, false, nil
}

func (d *Device) setSensorParams(req Request, prof SensorProfile, st *SensorState, kind string) error {
	want := map[string]int{"virtual": 2, "uart": 4, "udp-ip": 4}[kind]
	if len(req.Args) != want {
		return fmt.Errorf("want %d values, got %d", want, len(req.Args))
	}
	channel, err := d.argUint(req, 0, 32)
	if err != nil {
		return err
	}
	offset, err := strconv.ParseInt(req.Args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("time offset: %w", err)
	}
	var a, b uint64
	switch kind {
	case "uart":
		if a, err = d.argUint(req, 2, 32); err != nil {
			return err
		}
		if b, err = d.argUint(req, 3, 32); err != nil {
			return err
		}
		if _, ok := findEnum(prof.UARTDevices, uint32(a)); !ok {
			return fmt.Errorf("no uart device %d", a)
		}
		if _, ok := findEnum(prof.UARTModes, uint32(b)); !ok {
			return fmt.Errorf("no uart mode %d", b)
		}
		st.Device, st.Mode = a, b
	case "udp-ip":
		if a, err = d.argUint(req, 2, 32); err != nil {
			return err
		}
		if b, err = d.argUint(req, 3, 16); err != nil {
			return err
		}
		if _, ok := findEnum(prof.IPAddresses, uint32(a)); !ok {
			return fmt.Errorf("no ip address %d", a)
		}
		st.Address, st.UDPPort = a, b
	}
	st.Channel, st.TimeOffset = channel, offset
	return nil
}

func (d *Device) setProject(req Request) error {
	if req.Verb != VerbSet || len(req.Args) != 1 {
		return errors.New("want SET /project <name>")
	}
	if d.recording != "" {
		return errors.New("recording in progress")
	}
	name := req.Args[0]
	if name == "" {
		return errors.New("empty project name")
	}
	d.recorder = nil
	if d.open != nil {
		rec, err := d.open(name)
		if err != nil {
			return fmt.Errorf("open project: %w", err)
		}
		d.recorder = rec
	}
	d.project = name
	return nil
}

func (d *Device) track(req Request) error {
	switch req.Verb {
	case VerbStart:
		if len(req.Args) != 1 || req.Args[0] == "" {
			return errors.New("want START /track <name>")
		}
		if d.project == "" {
			return errors.New("no project")
		}
		if d.recording != "" {
			return fmt.Errorf("already recording %q", d.recording)
		}
		for _, src := range sonar.Sources {
			if d.boards[src].Preset == 0 {
				return fmt.Errorf("%s board not armed", src)
			}
		}
		name := req.Args[0]
		if d.recorder != nil {
			if _, err := d.recorder.CreateTrack(name, d.clock.Now()); err != nil {
				return err
			}
			for _, src := range sonar.Sources {
				if err := d.recorder.MarkSource(name, src, catalog.SourceInfo{Raw: true}); err != nil {
					return err
				}
			}
		}
		d.recording = name
		return nil
	case VerbStop:
		if d.recording == "" {
			return nil
		}
		name := d.recording
		d.recording = ""
		if d.recorder != nil {
			for _, src := range sonar.Sources {
				if err := d.recorder.MarkSource(name, src, catalog.SourceInfo{Raw: true, Computed: true}); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return fmt.Errorf("unknown request %s %s", req.Verb, req.Path)
}

// Board returns a copy of one board's commanded state.
func (d *Device) Board(src sonar.Source) BoardState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.boards[src]
}

// Sensor returns a copy of one sensor port's state.
func (d *Device) Sensor(name string) (SensorState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.sensors[name]
	if !ok {
		return SensorState{}, false
	}
	return *st, true
}

// Recording returns the name of the track being recorded, if any.
func (d *Device) Recording() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recording
}

// Param returns a device parameter as it was last set.
func (d *Device) Param(name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.params[name]
	return v, ok
}

func (d *Device) presets(src sonar.Source) []sonar.EnumValue {
	if src == sonar.Port {
		return d.profile.Port
	}
	return d.profile.Starboard
}

func (d *Device) sensorProfile(name string) (SensorProfile, bool) {
	for _, s := range d.profile.Sensors {
		if s.Name == name {
			return s, true
		}
	}
	return SensorProfile{}, false
}

func (d *Device) argUint(req Request, i, bits int) (uint64, error) {
	if i >= len(req.Args) {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	v, err := strconv.ParseUint(req.Args[i], 10, bits)
	if err != nil {
		return 0, fmt.Errorf("argument %d: %w", i+1, err)
	}
	return v, nil
}

func argFloats(req Request, n int) ([]float64, error) {
	if len(req.Args) != n {
		return nil, fmt.Errorf("want %d values, got %d", n, len(req.Args))
	}
	out := make([]float64, n)
	for i, a := range req.Args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func findEnum(values []sonar.EnumValue, v uint32) (string, bool) {
	for _, e := range values {
		if e.Value == v {
			return e.Name, true
		}
	}
	return "", false
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}
