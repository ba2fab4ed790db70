// Package config loads the declarative sensor/antenna file and the console's
// command-line options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/sidescan/internal/sonar"
	"github.com/banshee-data/sidescan/internal/units"
)

// maxFileSize bounds the declarative file.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Section is one group of the declarative file: a sensor port or one of the
// two sonar antennas. Absent keys stay nil and the Get* accessors supply the
// zero value.
type Section struct {
	Channel    *int    `yaml:"channel,omitempty"`
	TimeOffset *int64  `yaml:"time-offset,omitempty"`
	UARTDevice *string `yaml:"uart-device,omitempty"`
	UARTMode   *string `yaml:"uart-mode,omitempty"`
	IPAddress  *string `yaml:"ip-address,omitempty"`
	UDPPort    *int    `yaml:"udp-port,omitempty"`

	PositionX     *float64 `yaml:"position-x,omitempty"`
	PositionY     *float64 `yaml:"position-y,omitempty"`
	PositionZ     *float64 `yaml:"position-z,omitempty"`
	PositionPsi   *float64 `yaml:"position-psi,omitempty"`
	PositionGamma *float64 `yaml:"position-gamma,omitempty"`
	PositionTheta *float64 `yaml:"position-theta,omitempty"`
}

func (s *Section) GetChannel() int {
	if s == nil || s.Channel == nil {
		return 0
	}
	return *s.Channel
}

func (s *Section) GetTimeOffset() int64 {
	if s == nil || s.TimeOffset == nil {
		return 0
	}
	return *s.TimeOffset
}

func (s *Section) GetUARTDevice() string {
	if s == nil || s.UARTDevice == nil {
		return ""
	}
	return *s.UARTDevice
}

func (s *Section) GetUARTMode() string {
	if s == nil || s.UARTMode == nil {
		return ""
	}
	return *s.UARTMode
}

func (s *Section) GetIPAddress() string {
	if s == nil || s.IPAddress == nil {
		return ""
	}
	return *s.IPAddress
}

func (s *Section) GetUDPPort() int {
	if s == nil || s.UDPPort == nil {
		return 0
	}
	return *s.UDPPort
}

// AntennaPosition returns the mounting of the section with angles converted
// from degrees to radians.
func (s *Section) AntennaPosition() sonar.AntennaPosition {
	if s == nil {
		return sonar.AntennaPosition{}
	}
	var pos sonar.AntennaPosition
	pos.Offset.X = f64(s.PositionX)
	pos.Offset.Y = f64(s.PositionY)
	pos.Offset.Z = f64(s.PositionZ)
	pos.Psi = units.DegreesToRadians(f64(s.PositionPsi))
	pos.Gamma = units.DegreesToRadians(f64(s.PositionGamma))
	pos.Theta = units.DegreesToRadians(f64(s.PositionTheta))
	return pos
}

func f64(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func (s *Section) hasTransportKeys() bool {
	return s.Channel != nil || s.TimeOffset != nil || s.UARTDevice != nil ||
		s.UARTMode != nil || s.IPAddress != nil || s.UDPPort != nil
}

// File is the parsed declarative file. A group that is present but empty is
// kept as a Section with every key absent; it still enables its port.
type File struct {
	Sections map[string]*Section
}

// LoadFile reads a YAML file, rejecting unknown keys.
func LoadFile(path string) (*File, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML file contents.
func Parse(data []byte) (*File, error) {
	raw := map[string]*Section{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	f := &File{Sections: make(map[string]*Section, len(raw))}
	for name, s := range raw {
		if s == nil {
			s = &Section{}
		}
		f.Sections[name] = s
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return f, nil
}

// Validate checks constraints that do not depend on the device.
func (f *File) Validate() error {
	for _, src := range sonar.Sources {
		if s, ok := f.Sections[src.SectionName()]; ok && s.hasTransportKeys() {
			return fmt.Errorf("group %q accepts only position keys", src.SectionName())
		}
	}
	for _, name := range f.Names() {
		s := f.Sections[name]
		for key, v := range map[string]*float64{
			"position-x": s.PositionX, "position-y": s.PositionY, "position-z": s.PositionZ,
			"position-psi": s.PositionPsi, "position-gamma": s.PositionGamma, "position-theta": s.PositionTheta,
		} {
			if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
				return fmt.Errorf("group %q: %s must be finite", name, key)
			}
		}
	}
	return nil
}

// Section returns the group for name. A nil File has no groups.
func (f *File) Section(name string) (*Section, bool) {
	if f == nil {
		return nil, false
	}
	s, ok := f.Sections[name]
	return s, ok
}

// Names returns the group names in sorted order.
func (f *File) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.Sections))
	for name := range f.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
