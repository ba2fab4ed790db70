package sonarlink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/sidescan/internal/sonar"
)

// ProfileFile is the simulator profile looked up in the driver path.
const ProfileFile = "sim.yaml"

const maxProfileSize = 1 << 20

// SensorProfile describes one simulated sensor port. A nil enumeration is
// reported as unavailable.
type SensorProfile struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"`
	UARTDevices []sonar.EnumValue `yaml:"uart-devices"`
	UARTModes   []sonar.EnumValue `yaml:"uart-modes"`
	IPAddresses []sonar.EnumValue `yaml:"ip-addresses"`
}

// Profile is what the simulated device reports about itself.
type Profile struct {
	GeneratorCaps []string          `yaml:"generator-capabilities"`
	GainCaps      []string          `yaml:"gain-capabilities"`
	GainRange     [2]float64        `yaml:"gain-range"`
	Starboard     []sonar.EnumValue `yaml:"starboard-presets"`
	Port          []sonar.EnumValue `yaml:"port-presets"`
	Sensors       []SensorProfile   `yaml:"sensors"`
	// Fail maps "VERB path" to the ERR message the device answers with.
	Fail map[string]string `yaml:"fail"`
}

// DefaultProfile is a two-board device with four presets and three sensor
// ports, one of each transport.
func DefaultProfile() Profile {
	return Profile{
		GeneratorCaps: []string{"preset", "auto"},
		GainCaps:      []string{"auto", "linear-db"},
		GainRange:     [2]float64{-20, 60},
		Starboard: []sonar.EnumValue{
			{Value: 0, Name: "off"}, {Value: 1, Name: "lfm-100k"},
			{Value: 2, Name: "lfm-300k"}, {Value: 3, Name: "tone-400k"},
		},
		Port: []sonar.EnumValue{
			{Value: 0, Name: "off"}, {Value: 11, Name: "lfm-100k"},
			{Value: 12, Name: "lfm-300k"}, {Value: 13, Name: "tone-400k"},
		},
		Sensors: []SensorProfile{
			{Name: "attitude", Type: "virtual"},
			{
				Name: "nmea",
				Type: "uart",
				UARTDevices: []sonar.EnumValue{
					{Value: 0, Name: "none"}, {Value: 1, Name: "/dev/ttyS0"}, {Value: 2, Name: "/dev/ttyS1"},
				},
				UARTModes: []sonar.EnumValue{
					{Value: 0, Name: "none"}, {Value: 1, Name: "4800-8N1"}, {Value: 2, Name: "9600-8N1"}, {Value: 3, Name: "115200-8N1"},
				},
			},
			{
				Name: "gnss",
				Type: "udp-ip",
				IPAddresses: []sonar.EnumValue{
					{Value: 0, Name: "none"}, {Value: 1, Name: "0.0.0.0"}, {Value: 2, Name: "192.168.1.10"},
				},
			},
		},
	}
}

// LoadProfile reads <dir>/sim.yaml. A missing file yields DefaultProfile.
func LoadProfile(dir string) (Profile, error) {
	path := filepath.Join(dir, ProfileFile)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultProfile(), nil
	}
	if err != nil {
		return Profile{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxProfileSize+1))
	if err != nil {
		return Profile{}, err
	}
	if len(data) > maxProfileSize {
		return Profile{}, fmt.Errorf("%s exceeds %d bytes", path, maxProfileSize)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a profile. Omitted keys keep their DefaultProfile
// values; unknown keys are rejected.
func ParseProfile(data []byte) (Profile, error) {
	p := DefaultProfile()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("parse simulator profile: %w", err)
	}
	if _, err := p.generatorMode(); err != nil {
		return Profile{}, err
	}
	if _, err := p.gainMode(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p Profile) generatorMode() (sonar.GeneratorMode, error) {
	var m sonar.GeneratorMode
	for _, name := range p.GeneratorCaps {
		switch strings.ToLower(name) {
		case "preset":
			m |= sonar.GeneratorPreset
		case "auto":
			m |= sonar.GeneratorAuto
		case "simple":
			m |= sonar.GeneratorSimple
		case "extended":
			m |= sonar.GeneratorExtended
		default:
			return 0, fmt.Errorf("unknown generator capability %q", name)
		}
	}
	return m, nil
}

func (p Profile) gainMode() (sonar.GainMode, error) {
	var m sonar.GainMode
	for _, name := range p.GainCaps {
		switch strings.ToLower(name) {
		case "auto":
			m |= sonar.GainAuto
		case "linear-db":
			m |= sonar.GainLinearDB
		default:
			return 0, fmt.Errorf("unknown gain capability %q", name)
		}
	}
	return m, nil
}
