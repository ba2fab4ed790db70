package params

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sidescan/internal/sonar"
)

func TestStepBrightnessTable(t *testing.T) {
	tests := []struct {
		cur  float64
		dir  Direction
		want float64
	}{
		{0, Increase, 10},
		{45, Increase, 55},
		{50, Increase, 55},
		{85, Increase, 90},
		{90, Increase, 91},
		{99, Increase, 100},
		{100, Decrease, 99},
		{91, Decrease, 90},
		{90, Decrease, 85},
		{55, Decrease, 50},
		{50, Decrease, 40},
		{10, Decrease, 0},
	}
	for _, tt := range tests {
		if got := StepBrightness(tt.cur, tt.dir); got != tt.want {
			t.Errorf("StepBrightness(%v, %v) = %v, want %v", tt.cur, tt.dir, got, tt.want)
		}
	}
}

func TestStepBrightnessRoundTrip(t *testing.T) {
	for cur := 0.0; cur <= 99; cur++ {
		up := StepBrightness(cur, Increase)
		back := StepBrightness(up, Decrease)

		// Exact where both sides of the step share a step size.
		if (cur < 40 && up < 50) || (cur >= 91) {
			if back != cur {
				t.Errorf("round trip from %v: up %v, back %v", cur, up, back)
			}
			continue
		}
		// Otherwise within the coarsest step on either side.
		if diff := back - cur; diff < -10 || diff > 10 {
			t.Errorf("round trip from %v drifted to %v", cur, back)
		}
	}
}

func TestStepGainAuto(t *testing.T) {
	var gc GainCurve = AutoGain{Level: 0.95, Sensitivity: 0.1}

	gc, err := StepGain(gc, GainLevel, Increase)
	require.NoError(t, err)
	assert.Equal(t, 1.0, gc.(AutoGain).Level, "level clamps at 1")

	gc, err = StepGain(gc, GainSensitivity, Decrease)
	require.NoError(t, err)
	assert.Equal(t, 0.0, gc.(AutoGain).Sensitivity, "sensitivity clamps at 0")

	gc, err = StepGain(gc, GainSensitivity, Increase)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, gc.(AutoGain).Sensitivity, 1e-12)

	_, err = StepGain(gc, GainSlope, Increase)
	var verr *sonar.ValidationError
	assert.True(t, errors.As(err, &verr), "slope is not part of level/sensitivity curve")
}

func TestStepGainLinear(t *testing.T) {
	var gc GainCurve = LinearGain{Gain0: 0, Slope: 0}

	for i := 0; i < 100; i++ {
		var err error
		gc, err = StepGain(gc, GainSlope, Increase)
		require.NoError(t, err)
	}
	assert.Equal(t, 250.0, gc.(LinearGain).Slope, "slope is not clamped")

	gc, err := StepGain(gc, GainBase, Decrease)
	require.NoError(t, err)
	assert.Equal(t, -0.5, gc.(LinearGain).Gain0)

	_, err = StepGain(gc, GainLevel, Increase)
	assert.Error(t, err)
}

func TestStepRangeAndSignal(t *testing.T) {
	assert.Equal(t, 140.0, StepRange(150, Decrease))
	assert.Equal(t, 160.0, StepRange(150, Increase))
	assert.Equal(t, 0, StepSignal(1, Decrease))
	assert.Equal(t, 2, StepSignal(1, Increase))
}
