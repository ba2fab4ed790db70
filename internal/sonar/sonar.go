// Package sonar defines the device-facing contracts of a dual-channel
// side-scan sonar: the two receive boards, the enumerations the device
// reports, and the control surfaces the console drives.
//
// Implementations live elsewhere (see internal/sonarlink). Every call is a
// synchronous round trip to the device; timeouts belong to the transport.
package sonar

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Source identifies one of the two receive boards.
type Source int

const (
	Starboard Source = iota
	Port
)

// Sources lists the boards in the order commands are issued to them.
var Sources = [2]Source{Starboard, Port}

func (s Source) String() string {
	switch s {
	case Starboard:
		return "starboard"
	case Port:
		return "port"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// SectionName returns the configuration group that carries the antenna
// mounting of the board.
func (s Source) SectionName() string {
	return "ss-" + s.String()
}

// ParseSource accepts the names produced by String.
func ParseSource(name string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "starboard":
		return Starboard, nil
	case "port":
		return Port, nil
	default:
		return 0, fmt.Errorf("unknown sonar source %q", name)
	}
}

// EnumValue is one entry of an enumeration reported by the device: signal
// presets, UART devices, UART modes, IP addresses.
type EnumValue struct {
	Value uint32 `json:"value"`
	Name  string `json:"name"`
}

// Lookup finds the value whose name matches exactly. The device uses 0 as a
// "none" sentinel, so an entry with value 0 never counts as a match.
func Lookup(values []EnumValue, name string) (uint32, bool) {
	for _, v := range values {
		if v.Name == name {
			return v.Value, v.Value != 0
		}
	}
	return 0, false
}

// PortType is the transport a sensor port reports.
type PortType int

const (
	PortUnknown PortType = iota
	PortVirtual
	PortUART
	PortUDPIP
)

func (t PortType) String() string {
	switch t {
	case PortVirtual:
		return "virtual"
	case PortUART:
		return "uart"
	case PortUDPIP:
		return "udp-ip"
	default:
		return "unknown"
	}
}

func (t PortType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// ParsePortType maps a reported name to a PortType. Unrecognised names are
// PortUnknown rather than an error: the device may expose transports the
// console does not drive.
func ParsePortType(name string) PortType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "virtual":
		return PortVirtual
	case "uart":
		return PortUART
	case "udp-ip", "udp":
		return PortUDPIP
	default:
		return PortUnknown
	}
}

// GeneratorMode is a bitmask of transmit generator capabilities.
type GeneratorMode uint8

const (
	GeneratorPreset GeneratorMode = 1 << iota
	GeneratorAuto
	GeneratorSimple
	GeneratorExtended
)

func (m GeneratorMode) Has(flag GeneratorMode) bool { return m&flag != 0 }

// GainMode is a bitmask of gain curve (TVG) capabilities.
type GainMode uint8

const (
	GainAuto GainMode = 1 << iota
	GainLinearDB
)

func (m GainMode) Has(flag GainMode) bool { return m&flag != 0 }

// AntennaPosition is the mounting of an antenna relative to the vessel
// origin. Offset is in meters; angles are radians.
type AntennaPosition struct {
	Offset r3.Vec  `json:"offset"`
	Psi    float64 `json:"psi"`
	Gamma  float64 `json:"gamma"`
	Theta  float64 `json:"theta"`
}

// Control drives the acquisition side of the sonar.
type Control interface {
	GeneratorCapabilities(src Source) (GeneratorMode, error)
	EnableGenerator(src Source) error
	ListPresets(src Source) ([]EnumValue, error)
	SetPreset(src Source, id uint32) error

	GainCapabilities(src Source) (GainMode, error)
	EnableGain(src Source) error
	// GainRange reports the device gain limits in dB. The values are
	// advisory; nothing enforces them before SetGainLinearDB.
	GainRange(src Source) (min, max float64, err error)
	SetGainAuto(src Source, level, sensitivity float64) error
	SetGainLinearDB(src Source, gain0, slope float64) error

	SetReceiveTime(src Source, seconds float64) error
	SetAntennaPosition(src Source, pos AntennaPosition) error

	// SetProject selects the project new tracks are written into.
	SetProject(name string) error
	// Start begins recording a survey track with the given name.
	Start(track string) error
	Stop() error
}

// SensorControl configures the auxiliary sensor ports of the device.
//
// The List* methods return a nil slice when the port does not expose that
// enumeration at all, and a non-nil (possibly empty) slice otherwise.
type SensorControl interface {
	ListPorts() ([]string, error)
	PortType(port string) (PortType, error)
	ListUARTDevices(port string) ([]EnumValue, error)
	ListUARTModes(port string) ([]EnumValue, error)
	ListIPAddresses(port string) ([]EnumValue, error)

	SetEnable(port string, enable bool) error
	SetVirtualParam(port string, channel uint, timeOffset int64) error
	SetUARTParam(port string, channel uint, timeOffset int64, device, mode uint32) error
	SetUDPIPParam(port string, channel uint, timeOffset int64, address uint32, udpPort uint16) error
	SetSensorPosition(port string, pos AntennaPosition) error
}
