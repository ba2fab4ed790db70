package params

import (
	"fmt"

	"github.com/banshee-data/sidescan/internal/sonar"
)

// Direction of a single increase/decrease action.
type Direction int

const (
	Decrease Direction = -1
	Increase Direction = 1
)

// Step sizes for repeated operator actions.
const (
	RangeStep       = 10.0
	LevelStep       = 0.1
	SensitivityStep = 0.2
	Gain0Step       = 0.5
	SlopeStep       = 2.5
)

// StepRange moves the range by one fixed step. The result is not validated.
func StepRange(cur float64, d Direction) float64 {
	return cur + float64(d)*RangeStep
}

// StepBrightness moves brightness by a step that shrinks near the top of the
// scale: 10 below 50, 5 below 90, 1 above. Going down the thresholds are
// exclusive, so 90 steps by 5 and 50 steps by 10.
func StepBrightness(cur float64, d Direction) float64 {
	if d == Increase {
		switch {
		case cur < 50:
			return cur + 10
		case cur < 90:
			return cur + 5
		default:
			return cur + 1
		}
	}
	switch {
	case cur > 90:
		return cur - 1
	case cur > 50:
		return cur - 5
	default:
		return cur - 10
	}
}

// StepSignal moves the preset index by one.
func StepSignal(cur int, d Direction) int {
	return cur + int(d)
}

// GainParam selects which component of a gain curve a step moves.
type GainParam int

const (
	GainLevel GainParam = iota
	GainSensitivity
	GainBase
	GainSlope
)

func (p GainParam) String() string {
	switch p {
	case GainLevel:
		return "level"
	case GainSensitivity:
		return "sensitivity"
	case GainBase:
		return "gain0"
	case GainSlope:
		return "slope"
	default:
		return fmt.Sprintf("gain-param(%d)", int(p))
	}
}

// StepGain moves one component of a gain curve. Level and sensitivity are
// clamped to [0,1]; the linear dB components are not bounded. Stepping a
// component the curve does not have is a validation error.
func StepGain(gc GainCurve, p GainParam, d Direction) (GainCurve, error) {
	switch g := gc.(type) {
	case AutoGain:
		switch p {
		case GainLevel:
			g.Level = clamp01(g.Level + float64(d)*LevelStep)
			return g, nil
		case GainSensitivity:
			g.Sensitivity = clamp01(g.Sensitivity + float64(d)*SensitivityStep)
			return g, nil
		}
	case LinearGain:
		switch p {
		case GainBase:
			g.Gain0 += float64(d) * Gain0Step
			return g, nil
		case GainSlope:
			g.Slope += float64(d) * SlopeStep
			return g, nil
		}
	case nil:
		return nil, &sonar.ValidationError{Field: "gain curve", Value: nil, Reason: "not set"}
	}
	return nil, &sonar.ValidationError{
		Field:  "gain " + p.String(),
		Value:  gc.Kind(),
		Reason: "not adjustable in this gain mode",
	}
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
