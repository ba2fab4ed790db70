// Package dispatch applies acquisition commands to both receive boards.
//
// Every command goes to the starboard board first and the port board second.
// A starboard failure leaves both boards untouched. A port failure after a
// starboard success is reported as a *sonar.PartialApplyError and is not
// rolled back.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/params"
	"github.com/banshee-data/sidescan/internal/sonar"
)

// Command is one per-board device call.
type Command interface {
	Name() string
	Apply(ctl sonar.Control, src sonar.Source) error
}

// ReceiveTime sets the receive window.
type ReceiveTime struct {
	Seconds float64
}

func (ReceiveTime) Name() string { return "receive-time" }

func (c ReceiveTime) Apply(ctl sonar.Control, src sonar.Source) error {
	return ctl.SetReceiveTime(src, c.Seconds)
}

// Gain sets the gain curve in whichever representation it carries.
type Gain struct {
	Curve params.GainCurve
}

func (Gain) Name() string { return "gain" }

func (c Gain) Apply(ctl sonar.Control, src sonar.Source) error {
	switch g := c.Curve.(type) {
	case params.AutoGain:
		return ctl.SetGainAuto(src, g.Level, g.Sensitivity)
	case params.LinearGain:
		return ctl.SetGainLinearDB(src, g.Gain0, g.Slope)
	default:
		return fmt.Errorf("unsupported gain curve %T", c.Curve)
	}
}

// Preset selects a signal preset. The two boards may use different ids for
// the same logical preset.
type Preset struct {
	Starboard uint32
	Port      uint32
}

func (Preset) Name() string { return "preset" }

func (c Preset) Apply(ctl sonar.Control, src sonar.Source) error {
	if src == sonar.Port {
		return ctl.SetPreset(src, c.Port)
	}
	return ctl.SetPreset(src, c.Starboard)
}

// Dispatcher sends commands to a sonar. A Dispatcher with a nil Control
// rejects every command with sonar.ErrNoSonar.
type Dispatcher struct {
	ctl     sonar.Control
	metrics *monitoring.Metrics
}

// New returns a Dispatcher for ctl. metrics may be nil.
func New(ctl sonar.Control, metrics *monitoring.Metrics) *Dispatcher {
	return &Dispatcher{ctl: ctl, metrics: metrics}
}

// ApplyToBoth applies cmd to the starboard board, then the port board.
func (d *Dispatcher) ApplyToBoth(cmd Command) error {
	if d == nil || d.ctl == nil {
		return sonar.ErrNoSonar
	}
	name := cmd.Name()

	if err := cmd.Apply(d.ctl, sonar.Starboard); err != nil {
		d.metrics.ObserveCommand(name, "rejected")
		monitoring.Opsf("%s rejected by starboard board: %v", name, err)
		return &sonar.ApplyError{Command: name, Source: sonar.Starboard, Err: err}
	}
	if err := cmd.Apply(d.ctl, sonar.Port); err != nil {
		d.metrics.ObserveCommand(name, "partial")
		monitoring.Opsf("%s applied to starboard but rejected by port board: %v", name, err)
		return &sonar.PartialApplyError{Command: name, Applied: sonar.Starboard, Failed: sonar.Port, Err: err}
	}
	d.metrics.ObserveCommand(name, "ok")
	monitoring.Diagf("%s applied to both boards", name)
	return nil
}

// ApplyAll applies commands in order and stops at the first failure.
func (d *Dispatcher) ApplyAll(cmds ...Command) error {
	for _, cmd := range cmds {
		if err := d.ApplyToBoth(cmd); err != nil {
			return err
		}
	}
	return nil
}

// IsPartial reports whether err leaves the boards out of step.
func IsPartial(err error) bool {
	var p *sonar.PartialApplyError
	return errors.As(err, &p)
}
