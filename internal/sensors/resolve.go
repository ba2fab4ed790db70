// Package sensors turns the declarative file into sensor port activations and
// sonar antenna mountings.
//
// Resolution is pure: ResolvePort looks only at the file and the capabilities
// the device reported for the port. Commands are issued by Apply, and only
// for an activation that resolved completely, so a rejected port never
// receives a partial setup.
package sensors

import (
	"fmt"

	"github.com/banshee-data/sidescan/internal/config"
	"github.com/banshee-data/sidescan/internal/sonar"
)

// UDP port bounds accepted for UDP/IP sensor ports.
const (
	MinUDPPort = 1024
	MaxUDPPort = 65535
)

// Action is what Apply does with a port.
type Action int

const (
	// ActionDisable turns off a port the file does not mention.
	ActionDisable Action = iota
	// ActionEnable turns on and configures a port.
	ActionEnable
	// ActionSkip leaves a port with an unsupported transport untouched.
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionDisable:
		return "disable"
	case ActionEnable:
		return "enable"
	default:
		return "skip"
	}
}

// Transport is one of Virtual, UART or UDPIP.
type Transport interface {
	PortType() sonar.PortType
}

// Virtual ports carry only channel and time offset.
type Virtual struct{}

// UART ports carry resolved device and mode ids.
type UART struct {
	DeviceID uint32
	ModeID   uint32
}

// UDPIP ports carry a resolved address id and a listening port.
type UDPIP struct {
	AddressID uint32
	Port      uint16
}

func (Virtual) PortType() sonar.PortType { return sonar.PortVirtual }
func (UART) PortType() sonar.PortType    { return sonar.PortUART }
func (UDPIP) PortType() sonar.PortType   { return sonar.PortUDPIP }

// Activation is the fully resolved setup of one port.
type Activation struct {
	Port       string
	Action     Action
	Channel    uint
	TimeOffset int64
	Transport  Transport
	Position   sonar.AntennaPosition
}

// Capabilities is what the device reports for one port. A nil enumeration
// means the port does not offer it.
type Capabilities struct {
	Type        sonar.PortType
	UARTDevices []sonar.EnumValue
	UARTModes   []sonar.EnumValue
	IPAddresses []sonar.EnumValue
}

// Probe queries the capabilities of a port. Only the enumerations relevant
// to the reported transport are requested.
func Probe(ctl sonar.SensorControl, port string) (Capabilities, error) {
	var caps Capabilities
	var err error
	if caps.Type, err = ctl.PortType(port); err != nil {
		return caps, fmt.Errorf("port type: %w", err)
	}
	switch caps.Type {
	case sonar.PortUART:
		if caps.UARTDevices, err = ctl.ListUARTDevices(port); err != nil {
			return caps, fmt.Errorf("list uart devices: %w", err)
		}
		if caps.UARTModes, err = ctl.ListUARTModes(port); err != nil {
			return caps, fmt.Errorf("list uart modes: %w", err)
		}
	case sonar.PortUDPIP:
		if caps.IPAddresses, err = ctl.ListIPAddresses(port); err != nil {
			return caps, fmt.Errorf("list ip addresses: %w", err)
		}
	}
	return caps, nil
}

// ResolvePort computes the activation for a port. A port without a group in f
// is disabled. Names that the device does not enumerate and out of range
// values are reported as *sonar.ResolutionError.
func ResolvePort(name string, f *config.File, caps Capabilities) (Activation, error) {
	sec, ok := f.Section(name)
	if !ok {
		return Activation{Port: name, Action: ActionDisable}, nil
	}

	channel := sec.GetChannel()
	if channel < 0 {
		return Activation{}, &sonar.ResolutionError{Port: name, Reason: fmt.Sprintf("channel %d must be at least 1", channel)}
	}
	if channel == 0 {
		channel = 1
	}
	act := Activation{
		Port:       name,
		Action:     ActionEnable,
		Channel:    uint(channel),
		TimeOffset: sec.GetTimeOffset(),
		Position:   sec.AntennaPosition(),
	}

	switch caps.Type {
	case sonar.PortVirtual:
		act.Transport = Virtual{}

	case sonar.PortUART:
		if caps.UARTDevices == nil || caps.UARTModes == nil {
			return Activation{Port: name, Action: ActionSkip}, nil
		}
		device, ok := sonar.Lookup(caps.UARTDevices, sec.GetUARTDevice())
		if !ok {
			return Activation{}, &sonar.ResolutionError{Port: name, Name: sec.GetUARTDevice(), Reason: "unknown uart device"}
		}
		mode, ok := sonar.Lookup(caps.UARTModes, sec.GetUARTMode())
		if !ok {
			return Activation{}, &sonar.ResolutionError{Port: name, Name: sec.GetUARTMode(), Reason: "unknown uart mode"}
		}
		act.Transport = UART{DeviceID: device, ModeID: mode}

	case sonar.PortUDPIP:
		if caps.IPAddresses == nil {
			return Activation{Port: name, Action: ActionSkip}, nil
		}
		addr, ok := sonar.Lookup(caps.IPAddresses, sec.GetIPAddress())
		if !ok {
			return Activation{}, &sonar.ResolutionError{Port: name, Name: sec.GetIPAddress(), Reason: "unknown ip address"}
		}
		udpPort := sec.GetUDPPort()
		if udpPort < MinUDPPort || udpPort > MaxUDPPort {
			return Activation{}, &sonar.ResolutionError{
				Port:   name,
				Reason: fmt.Sprintf("udp port %d out of range [%d, %d]", udpPort, MinUDPPort, MaxUDPPort),
			}
		}
		act.Transport = UDPIP{AddressID: addr, Port: uint16(udpPort)}

	default:
		return Activation{Port: name, Action: ActionSkip}, nil
	}
	return act, nil
}
