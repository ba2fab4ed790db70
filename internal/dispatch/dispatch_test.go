package dispatch

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/banshee-data/sidescan/internal/monitoring"
	"github.com/banshee-data/sidescan/internal/params"
	"github.com/banshee-data/sidescan/internal/sonar"
	fake "github.com/banshee-data/sidescan/internal/testutil"
)

func targets(calls []fake.Call) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.Method+"/"+c.Target)
	}
	return out
}

func TestApplyToBothOrder(t *testing.T) {
	dev := fake.NewFakeSonar()
	d := New(dev, nil)

	if err := d.ApplyToBoth(ReceiveTime{Seconds: 0.2}); err != nil {
		t.Fatalf("ApplyToBoth: %v", err)
	}
	want := []string{"SetReceiveTime/starboard", "SetReceiveTime/port"}
	if diff := cmp.Diff(want, targets(dev.Calls())); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyToBothStarboardFailure(t *testing.T) {
	dev := fake.NewFakeSonar()
	dev.FailOn("SetReceiveTime", "starboard", nil)
	reg := prometheus.NewRegistry()
	m, err := monitoring.NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	d := New(dev, m)

	err = d.ApplyToBoth(ReceiveTime{Seconds: 0.2})
	var applyErr *sonar.ApplyError
	if !errors.As(err, &applyErr) || applyErr.Source != sonar.Starboard {
		t.Fatalf("error = %v, want starboard ApplyError", err)
	}
	if got := len(dev.CallsTo("SetReceiveTime")); got != 1 {
		t.Errorf("port board was called after starboard failure (%d calls)", got)
	}
	if IsPartial(err) {
		t.Error("starboard failure reported as partial")
	}
	if got := testutil.ToFloat64(m.Commands.WithLabelValues("receive-time", "rejected")); got != 1 {
		t.Errorf("rejected counter = %v", got)
	}
}

func TestApplyToBothPortFailure(t *testing.T) {
	dev := fake.NewFakeSonar()
	dev.FailOn("SetGainAuto", "port", nil)
	d := New(dev, nil)

	err := d.ApplyToBoth(Gain{Curve: params.AutoGain{Level: 0.4, Sensitivity: 0.6}})
	var partial *sonar.PartialApplyError
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want PartialApplyError", err)
	}
	if partial.Applied != sonar.Starboard || partial.Failed != sonar.Port {
		t.Errorf("partial = %+v", partial)
	}
	if !errors.Is(err, fake.ErrInjected) {
		t.Error("partial error does not wrap the device error")
	}
	// No rollback call is issued.
	if got := len(dev.Calls()); got != 2 {
		t.Errorf("got %d calls, want 2", got)
	}
}

func TestGainRepresentations(t *testing.T) {
	dev := fake.NewFakeSonar()
	d := New(dev, nil)

	if err := d.ApplyToBoth(Gain{Curve: params.LinearGain{Gain0: -3, Slope: 12.5}}); err != nil {
		t.Fatal(err)
	}
	calls := dev.CallsTo("SetGainLinearDB")
	if len(calls) != 2 {
		t.Fatalf("got %d linear calls", len(calls))
	}
	if diff := cmp.Diff([]any{-3.0, 12.5}, calls[1].Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	if err := d.ApplyToBoth(Gain{}); err == nil {
		t.Error("expected error for missing gain curve")
	}
}

func TestPresetUsesPerBoardIDs(t *testing.T) {
	dev := fake.NewFakeSonar()
	d := New(dev, nil)

	if err := d.ApplyToBoth(Preset{Starboard: 2, Port: 12}); err != nil {
		t.Fatal(err)
	}
	calls := dev.CallsTo("SetPreset")
	if calls[0].Args[0] != uint32(2) || calls[1].Args[0] != uint32(12) {
		t.Errorf("preset ids = %v, %v", calls[0].Args, calls[1].Args)
	}
}

func TestNoSonar(t *testing.T) {
	d := New(nil, nil)
	if err := d.ApplyToBoth(ReceiveTime{Seconds: 0.1}); !errors.Is(err, sonar.ErrNoSonar) {
		t.Errorf("error = %v, want ErrNoSonar", err)
	}
}

func TestApplyAllStopsAtFirstFailure(t *testing.T) {
	dev := fake.NewFakeSonar()
	dev.FailOn("SetPreset", "", nil)
	d := New(dev, nil)

	err := d.ApplyAll(Preset{Starboard: 1, Port: 11}, ReceiveTime{Seconds: 0.1})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(dev.CallsTo("SetReceiveTime")) != 0 {
		t.Error("later command applied after failure")
	}
}
