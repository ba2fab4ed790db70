package sensors

import (
	"fmt"

	"github.com/banshee-data/sidescan/internal/config"
	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/sonar"
)

// State is the configuration state of one sensor port.
type State int

const (
	Unconfigured State = iota
	Disabled
	Configuring
	Enabled
	Rejected
	Unsupported
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Configuring:
		return "configuring"
	case Enabled:
		return "enabled"
	case Rejected:
		return "rejected"
	case Unsupported:
		return "unsupported"
	default:
		return "unconfigured"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// PortStatus is one row of the port table.
type PortStatus struct {
	Port  string         `json:"port"`
	Type  sonar.PortType `json:"type"`
	State State          `json:"state"`
	Error string         `json:"error,omitempty"`
}

// Table is the result of configuring every port the device lists. It is
// read-only once Setup returns.
type Table struct {
	Ports []PortStatus
}

// Counts returns the number of ports in each state, keyed by state name.
func (t *Table) Counts() map[string]int {
	counts := map[string]int{}
	if t == nil {
		return counts
	}
	for _, p := range t.Ports {
		counts[p.State.String()]++
	}
	return counts
}

// Lookup returns the status of a port.
func (t *Table) Lookup(port string) (PortStatus, bool) {
	if t != nil {
		for _, p := range t.Ports {
			if p.Port == port {
				return p, true
			}
		}
	}
	return PortStatus{}, false
}

// Apply issues the device commands for a resolved activation. Any rejected
// command is reported as *sonar.ResolutionError, including a failure to
// disable an unused port.
func Apply(ctl sonar.SensorControl, act Activation) error {
	switch act.Action {
	case ActionSkip:
		return nil
	case ActionDisable:
		if err := ctl.SetEnable(act.Port, false); err != nil {
			return &sonar.ResolutionError{Port: act.Port, Reason: "can't disable port", Err: err}
		}
		return nil
	}

	if err := ctl.SetEnable(act.Port, true); err != nil {
		return &sonar.ResolutionError{Port: act.Port, Reason: "can't enable port", Err: err}
	}

	var err error
	switch t := act.Transport.(type) {
	case Virtual:
		err = ctl.SetVirtualParam(act.Port, act.Channel, act.TimeOffset)
	case UART:
		err = ctl.SetUARTParam(act.Port, act.Channel, act.TimeOffset, t.DeviceID, t.ModeID)
	case UDPIP:
		err = ctl.SetUDPIPParam(act.Port, act.Channel, act.TimeOffset, t.AddressID, t.Port)
	default:
		err = fmt.Errorf("no transport for port")
	}
	if err != nil {
		return &sonar.ResolutionError{Port: act.Port, Reason: "can't set port parameters", Err: err}
	}

	if err := ctl.SetSensorPosition(act.Port, act.Position); err != nil {
		return &sonar.ResolutionError{Port: act.Port, Reason: "can't set sensor position", Err: err}
	}
	return nil
}

// Setup resolves and applies every port the device lists, in listing order.
// It fails closed: the first rejected port aborts the remaining ones and the
// error is returned alongside the partial table. A nil file leaves every port
// as the device has it.
func Setup(ctl sonar.SensorControl, f *config.File) (*Table, error) {
	if f == nil {
		monitoring.Diagf("[sensors] no configuration file, sensor ports left as is")
		return &Table{}, nil
	}

	ports, err := ctl.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("list sensor ports: %w", err)
	}

	table := &Table{Ports: make([]PortStatus, len(ports))}
	for i, name := range ports {
		table.Ports[i] = PortStatus{Port: name}
	}

	for i, name := range ports {
		row := &table.Ports[i]

		var caps Capabilities
		if _, ok := f.Section(name); ok {
			row.State = Configuring
			if caps, err = Probe(ctl, name); err != nil {
				row.State = Rejected
				rerr := &sonar.ResolutionError{Port: name, Reason: "can't query port", Err: err}
				row.Error = rerr.Error()
				return table, rerr
			}
			row.Type = caps.Type
		}

		act, err := ResolvePort(name, f, caps)
		if err == nil {
			err = Apply(ctl, act)
		}
		if err != nil {
			row.State = Rejected
			row.Error = err.Error()
			monitoring.Opsf("[sensors] %v", err)
			return table, err
		}

		switch act.Action {
		case ActionDisable:
			row.State = Disabled
		case ActionSkip:
			row.State = Unsupported
			monitoring.Diagf("[sensors] port %q: %s transport not supported, skipped", name, caps.Type)
		default:
			row.State = Enabled
			monitoring.Diagf("[sensors] port %q enabled: %s channel %d", name, caps.Type, act.Channel)
		}
	}
	return table, nil
}

// SetupAntennas sends the mounting of both sonar antennas from the ss-starboard
// and ss-port groups. A missing group mounts the antenna at the origin. A nil
// file sends nothing.
func SetupAntennas(ctl sonar.Control, f *config.File) error {
	if f == nil {
		return nil
	}
	for _, src := range sonar.Sources {
		sec, _ := f.Section(src.SectionName())
		if err := ctl.SetAntennaPosition(src, sec.AntennaPosition()); err != nil {
			return fmt.Errorf("can't set position for %s: %w", src.SectionName(), err)
		}
	}
	return nil
}
