// Package params checks and converts operator-facing sonar and display
// values into the quantities the device consumes. Everything here is pure:
// a call either returns the converted value or a *sonar.ValidationError.
package params

import (
	"fmt"
	"math"

	"github.com/banshee-data/sidescan/internal/sonar"
	"github.com/banshee-data/sidescan/internal/units"
)

// Range limits in meters.
const (
	MinRange = 1.0
	MaxRange = 150.0
)

// receiveTimeDivisor converts a range in meters into the receive window in
// seconds: half of the nominal 1500 m/s round trip.
const receiveTimeDivisor = 750.0

// ValidateRange converts a range in meters to a receive time in seconds.
func ValidateRange(meters float64) (float64, error) {
	if math.IsNaN(meters) || meters < MinRange || meters > MaxRange {
		return 0, &sonar.ValidationError{
			Field:  "range",
			Value:  meters,
			Reason: fmt.Sprintf("must be between %g and %g m", MinRange, MaxRange),
		}
	}
	return meters / receiveTimeDivisor, nil
}

// GainKind names the two gain curve representations a device may support.
type GainKind int

const (
	GainKindAuto GainKind = iota
	GainKindLinearDB
)

func (k GainKind) String() string {
	if k == GainKindLinearDB {
		return "linear-db"
	}
	return "auto"
}

// Mode returns the device capability flag for the representation.
func (k GainKind) Mode() sonar.GainMode {
	if k == GainKindLinearDB {
		return sonar.GainLinearDB
	}
	return sonar.GainAuto
}

// GainCurve is one of AutoGain or LinearGain.
type GainCurve interface {
	Kind() GainKind
	validate() error
}

// AutoGain is the level/sensitivity representation, both in [0,1].
type AutoGain struct {
	Level       float64 `json:"level"`
	Sensitivity float64 `json:"sensitivity"`
}

func (AutoGain) Kind() GainKind { return GainKindAuto }

func (g AutoGain) validate() error {
	if !unit(g.Level) {
		return &sonar.ValidationError{Field: "gain level", Value: g.Level, Reason: "must be between 0 and 1"}
	}
	if !unit(g.Sensitivity) {
		return &sonar.ValidationError{Field: "gain sensitivity", Value: g.Sensitivity, Reason: "must be between 0 and 1"}
	}
	return nil
}

// LinearGain is a base gain in dB plus a slope in dB per unit of range.
// Values are not checked against the device gain range.
type LinearGain struct {
	Gain0 float64 `json:"gain0"`
	Slope float64 `json:"slope"`
}

func (LinearGain) Kind() GainKind { return GainKindLinearDB }

func (g LinearGain) validate() error {
	if math.IsNaN(g.Gain0) || math.IsInf(g.Gain0, 0) {
		return &sonar.ValidationError{Field: "gain0", Value: g.Gain0, Reason: "must be finite"}
	}
	if math.IsNaN(g.Slope) || math.IsInf(g.Slope, 0) {
		return &sonar.ValidationError{Field: "gain slope", Value: g.Slope, Reason: "must be finite"}
	}
	return nil
}

// ValidateGainCurve checks a gain curve of either representation.
func ValidateGainCurve(gc GainCurve) error {
	if gc == nil {
		return &sonar.ValidationError{Field: "gain curve", Value: nil, Reason: "not set"}
	}
	return gc.validate()
}

// DefaultGainCurve returns the startup curve for a device capability set:
// level/sensitivity when supported, otherwise a flat linear curve starting at
// the device minimum gain.
func DefaultGainCurve(caps sonar.GainMode, minGain float64) (GainCurve, error) {
	switch {
	case caps.Has(sonar.GainAuto):
		return AutoGain{Level: 0.5, Sensitivity: 0.6}, nil
	case caps.Has(sonar.GainLinearDB):
		return LinearGain{Gain0: minGain, Slope: 0}, nil
	default:
		return nil, fmt.Errorf("unsupported gain mode %#x", uint8(caps))
	}
}

// ValidateSignalIndex checks a preset index against both boards' preset
// counts. Index 0 means "no selection" and is never valid.
func ValidateSignalIndex(i, starboardCount, portCount int) error {
	limit := min(starboardCount, portCount)
	if i < 1 || i >= limit {
		return &sonar.ValidationError{
			Field:  "signal",
			Value:  i,
			Reason: fmt.Sprintf("must be between 1 and %d", limit-1),
		}
	}
	return nil
}

// ToneCurve is the three-point display level curve derived from brightness.
type ToneCurve struct {
	Black float64 `json:"black"`
	Gamma float64 `json:"gamma"`
	White float64 `json:"white"`
}

// ValidateBrightness converts a brightness percentage into a tone curve.
func ValidateBrightness(percent float64) (ToneCurve, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return ToneCurve{}, &sonar.ValidationError{Field: "brightness", Value: percent, Reason: "must be between 0 and 100 %"}
	}
	f := units.Fraction(percent)
	return ToneCurve{
		Black: 0,
		Gamma: 1.25 - 0.5*f,
		White: 1 - 0.99*f,
	}, nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
