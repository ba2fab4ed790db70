package sonarlink

import (
	"fmt"

	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/sonar"
)

// Startup parameter values.
const (
	dataTypeRawOnly = 0
	autoTVGMaxCPU   = 25
)

// Initialize takes control of the device and enables the generator and gain
// blocks of both boards. Each board must support preset signals.
func Initialize(c *Client) error {
	if err := c.Master(); err != nil {
		return fmt.Errorf("take master control: %w", err)
	}
	if err := c.SetParameter("data-type", dataTypeRawOnly); err != nil {
		return fmt.Errorf("select raw data type: %w", err)
	}
	if err := c.SetParameter("auto-tvg-max-cpu", autoTVGMaxCPU); err != nil {
		return fmt.Errorf("limit auto gain cpu: %w", err)
	}
	for _, src := range sonar.Sources {
		caps, err := c.GeneratorCapabilities(src)
		if err != nil {
			return fmt.Errorf("%s generator capabilities: %w", src, err)
		}
		if !caps.Has(sonar.GeneratorPreset) {
			return fmt.Errorf("%s generator does not support preset signals (caps %#x)", src, uint8(caps))
		}
		if err := c.EnableGenerator(src); err != nil {
			return fmt.Errorf("enable %s generator: %w", src, err)
		}
		if err := c.EnableGain(src); err != nil {
			return fmt.Errorf("enable %s gain: %w", src, err)
		}
	}
	monitoring.Diagf("[sonarlink] device initialised")
	return nil
}

// GainSetup is the gain capability shared by both boards.
type GainSetup struct {
	Caps    sonar.GainMode
	MinGain float64
	MaxGain float64
}

// QueryGain intersects the gain capabilities of both boards. The reported
// gain range is the narrower of the two; it is informational only.
func QueryGain(ctl sonar.Control) (GainSetup, error) {
	setup := GainSetup{Caps: sonar.GainAuto | sonar.GainLinearDB}
	for i, src := range sonar.Sources {
		caps, err := ctl.GainCapabilities(src)
		if err != nil {
			return GainSetup{}, fmt.Errorf("%s gain capabilities: %w", src, err)
		}
		setup.Caps &= caps

		lo, hi, err := ctl.GainRange(src)
		if err != nil {
			return GainSetup{}, fmt.Errorf("%s gain range: %w", src, err)
		}
		if i == 0 {
			setup.MinGain, setup.MaxGain = lo, hi
			continue
		}
		setup.MinGain = max(setup.MinGain, lo)
		setup.MaxGain = min(setup.MaxGain, hi)
	}
	if setup.Caps == 0 {
		return GainSetup{}, fmt.Errorf("boards share no gain mode")
	}
	return setup, nil
}
