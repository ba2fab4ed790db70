package testutil

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/sidescan/internal/sonar"
)

// ErrInjected is the default failure returned by FakeSonar.FailOn.
var ErrInjected = errors.New("injected device failure")

// Call is one recorded device call. Target is the board name for acquisition
// calls, the port name for sensor calls and empty otherwise.
type Call struct {
	Method string
	Target string
	Args   []any
}

// FakePort is a sensor port exposed by FakeSonar. Nil enumerations mean the
// port does not offer them.
type FakePort struct {
	Type      sonar.PortType
	Devices   []sonar.EnumValue
	Modes     []sonar.EnumValue
	Addresses []sonar.EnumValue
}

// FakeSonar implements sonar.Control and sonar.SensorControl in memory.
type FakeSonar struct {
	mu sync.Mutex

	GeneratorCaps [2]sonar.GeneratorMode
	GainCaps      [2]sonar.GainMode
	GainMin       [2]float64
	GainMax       [2]float64
	Presets       [2][]sonar.EnumValue

	PortNames []string
	Ports     map[string]*FakePort

	Project   string
	Recording string

	calls []Call
	fail  map[string]error
}

// NewFakeSonar returns a device with auto and linear gain, preset generators
// and four presets per board. Port ids differ from starboard ids.
func NewFakeSonar() *FakeSonar {
	return &FakeSonar{
		GeneratorCaps: [2]sonar.GeneratorMode{sonar.GeneratorPreset | sonar.GeneratorAuto, sonar.GeneratorPreset | sonar.GeneratorAuto},
		GainCaps:      [2]sonar.GainMode{sonar.GainAuto | sonar.GainLinearDB, sonar.GainAuto | sonar.GainLinearDB},
		GainMin:       [2]float64{-20, -20},
		GainMax:       [2]float64{60, 60},
		Presets: [2][]sonar.EnumValue{
			{{Value: 0, Name: "off"}, {Value: 1, Name: "lfm-100k"}, {Value: 2, Name: "lfm-300k"}, {Value: 3, Name: "tone-400k"}},
			{{Value: 0, Name: "off"}, {Value: 11, Name: "lfm-100k"}, {Value: 12, Name: "lfm-300k"}, {Value: 13, Name: "tone-400k"}},
		},
		Ports: map[string]*FakePort{},
		fail:  map[string]error{},
	}
}

// AddPort registers a sensor port in listing order.
func (f *FakeSonar) AddPort(name string, p *FakePort) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PortNames = append(f.PortNames, name)
	f.Ports[name] = p
}

// FailOn makes method fail for target ("" for every target). A nil err uses
// ErrInjected.
func (f *FakeSonar) FailOn(method, target string, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method+":"+target] = err
}

// ClearFailures removes every injected failure.
func (f *FakeSonar) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = map[string]error{}
}

// Calls returns a copy of the recorded calls.
func (f *FakeSonar) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls of one method.
func (f *FakeSonar) CallsTo(method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded calls but keeps failures.
func (f *FakeSonar) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// record appends the call and returns the injected failure, if any. Failed
// calls are recorded too.
func (f *FakeSonar) record(method, target string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Target: target, Args: args})
	if err, ok := f.fail[method+":"+target]; ok {
		return err
	}
	if err, ok := f.fail[method+":"]; ok {
		return err
	}
	return nil
}

func (f *FakeSonar) GeneratorCapabilities(src sonar.Source) (sonar.GeneratorMode, error) {
	if err := f.record("GeneratorCapabilities", src.String()); err != nil {
		return 0, err
	}
	return f.GeneratorCaps[src], nil
}

func (f *FakeSonar) EnableGenerator(src sonar.Source) error {
	return f.record("EnableGenerator", src.String())
}

func (f *FakeSonar) ListPresets(src sonar.Source) ([]sonar.EnumValue, error) {
	if err := f.record("ListPresets", src.String()); err != nil {
		return nil, err
	}
	return append([]sonar.EnumValue(nil), f.Presets[src]...), nil
}

func (f *FakeSonar) SetPreset(src sonar.Source, id uint32) error {
	return f.record("SetPreset", src.String(), id)
}

func (f *FakeSonar) GainCapabilities(src sonar.Source) (sonar.GainMode, error) {
	if err := f.record("GainCapabilities", src.String()); err != nil {
		return 0, err
	}
	return f.GainCaps[src], nil
}

func (f *FakeSonar) EnableGain(src sonar.Source) error {
	return f.record("EnableGain", src.String())
}

func (f *FakeSonar) GainRange(src sonar.Source) (float64, float64, error) {
	if err := f.record("GainRange", src.String()); err != nil {
		return 0, 0, err
	}
	return f.GainMin[src], f.GainMax[src], nil
}

func (f *FakeSonar) SetGainAuto(src sonar.Source, level, sensitivity float64) error {
	return f.record("SetGainAuto", src.String(), level, sensitivity)
}

func (f *FakeSonar) SetGainLinearDB(src sonar.Source, gain0, slope float64) error {
	return f.record("SetGainLinearDB", src.String(), gain0, slope)
}

func (f *FakeSonar) SetReceiveTime(src sonar.Source, seconds float64) error {
	return f.record("SetReceiveTime", src.String(), seconds)
}

func (f *FakeSonar) SetProject(name string) error {
	if err := f.record("SetProject", "", name); err != nil {
		return err
	}
	f.mu.Lock()
	f.Project = name
	f.mu.Unlock()
	return nil
}

func (f *FakeSonar) Start(track string) error {
	if err := f.record("Start", "", track); err != nil {
		return err
	}
	f.mu.Lock()
	f.Recording = track
	f.mu.Unlock()
	return nil
}

func (f *FakeSonar) Stop() error {
	if err := f.record("Stop", ""); err != nil {
		return err
	}
	f.mu.Lock()
	f.Recording = ""
	f.mu.Unlock()
	return nil
}

func (f *FakeSonar) SetAntennaPosition(src sonar.Source, pos sonar.AntennaPosition) error {
	return f.record("SetAntennaPosition", src.String(), pos)
}

func (f *FakeSonar) ListPorts() ([]string, error) {
	if err := f.record("ListPorts", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.PortNames...), nil
}

func (f *FakeSonar) port(name string) (*FakePort, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Ports[name]
	if !ok {
		return nil, fmt.Errorf("no such port %q", name)
	}
	return p, nil
}

func (f *FakeSonar) PortType(port string) (sonar.PortType, error) {
	if err := f.record("PortType", port); err != nil {
		return sonar.PortUnknown, err
	}
	p, err := f.port(port)
	if err != nil {
		return sonar.PortUnknown, err
	}
	return p.Type, nil
}

func (f *FakeSonar) ListUARTDevices(port string) ([]sonar.EnumValue, error) {
	if err := f.record("ListUARTDevices", port); err != nil {
		return nil, err
	}
	p, err := f.port(port)
	if err != nil {
		return nil, err
	}
	return p.Devices, nil
}

func (f *FakeSonar) ListUARTModes(port string) ([]sonar.EnumValue, error) {
	if err := f.record("ListUARTModes", port); err != nil {
		return nil, err
	}
	p, err := f.port(port)
	if err != nil {
		return nil, err
	}
	return p.Modes, nil
}

func (f *FakeSonar) ListIPAddresses(port string) ([]sonar.EnumValue, error) {
	if err := f.record("ListIPAddresses", port); err != nil {
		return nil, err
	}
	p, err := f.port(port)
	if err != nil {
		return nil, err
	}
	return p.Addresses, nil
}

func (f *FakeSonar) SetEnable(port string, enable bool) error {
	return f.record("SetEnable", port, enable)
}

func (f *FakeSonar) SetVirtualParam(port string, channel uint, timeOffset int64) error {
	return f.record("SetVirtualParam", port, channel, timeOffset)
}

func (f *FakeSonar) SetUARTParam(port string, channel uint, timeOffset int64, device, mode uint32) error {
	return f.record("SetUARTParam", port, channel, timeOffset, device, mode)
}

func (f *FakeSonar) SetUDPIPParam(port string, channel uint, timeOffset int64, address uint32, udpPort uint16) error {
	return f.record("SetUDPIPParam", port, channel, timeOffset, address, udpPort)
}

func (f *FakeSonar) SetSensorPosition(port string, pos sonar.AntennaPosition) error {
	return f.record("SetSensorPosition", port, pos)
}

var (
	_ sonar.Control       = (*FakeSonar)(nil)
	_ sonar.SensorControl = (*FakeSonar)(nil)
)
