// Package units converts between the quantities operators type and the
// quantities the sonar and display collaborators consume.
package units

import "math"

// Speed unit names accepted in logs and status output.
const (
	MPS   = "mps"
	Knots = "kn"
	KMPH  = "kmph"
)

// DegreesToRadians converts an angle in degrees to radians.
func DegreesToRadians(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}

// RadiansToDegrees converts an angle in radians to degrees.
func RadiansToDegrees(rad float64) float64 {
	return rad * (180.0 / math.Pi)
}

// Fraction converts a percentage to a fraction of one.
func Fraction(percent float64) float64 {
	return percent / 100.0
}

// ConvertSpeed converts a speed in meters per second to the target units.
// Unknown units leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case Knots:
		return speedMPS * 1.9438444924406
	case KMPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}
