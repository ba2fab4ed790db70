package catalog

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/sidescan/internal/sonar"
)

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func track(name string, minutes int, sb, port SourceInfo) TrackInfo {
	return TrackInfo{
		Name:    name,
		Created: base.Add(time.Duration(minutes) * time.Minute),
		Sources: map[sonar.Source]SourceInfo{sonar.Starboard: sb, sonar.Port: port},
	}
}

func TestRawOnlyExcludesSingleChannelRaw(t *testing.T) {
	tracks := []TrackInfo{
		track("SS1", 0, SourceInfo{Raw: true, Computed: true}, SourceInfo{Raw: false, Computed: true}),
	}
	if got := Build(tracks, RawOnly, ""); len(got.Entries) != 0 {
		t.Errorf("raw-only listed %v, want none", got.Entries)
	}
	if got := Build(tracks, RawOrComputed, ""); len(got.Entries) != 1 {
		t.Errorf("raw-or-computed listed %d entries, want 1", len(got.Entries))
	}
}

func TestBuildSortsAndReselects(t *testing.T) {
	full := SourceInfo{Raw: true}
	tracks := []TrackInfo{
		track("SS1", 0, full, full),
		track("SS3", 20, full, full),
		track("SS2", 10, full, full),
		{Name: "orphan", Created: base.Add(time.Hour)},
	}

	got := Build(tracks, RawOnly, "SS2")
	want := Catalog{
		Entries: []Entry{
			{Name: "SS3", Created: base.Add(20 * time.Minute), HasRawData: true},
			{Name: "SS2", Created: base.Add(10 * time.Minute), HasRawData: true},
			{Name: "SS1", Created: base, HasRawData: true},
		},
		Selected: 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build mismatch (-want +got):\n%s", diff)
	}
	if got.SelectedName() != "SS2" {
		t.Errorf("SelectedName = %q", got.SelectedName())
	}

	// A newer track shifts indices; selection follows the name.
	tracks = append(tracks, track("SS4", 30, full, full))
	got = Build(tracks, RawOnly, "SS2")
	if got.Selected != 2 || got.SelectedName() != "SS2" {
		t.Errorf("after rebuild Selected = %d (%q), want 2 (SS2)", got.Selected, got.SelectedName())
	}

	if got := Build(tracks, RawOnly, "gone"); got.Selected != -1 {
		t.Errorf("missing open track Selected = %d, want -1", got.Selected)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{RawOnly, RawOrComputed} {
		got, err := ParsePolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePolicy("computed-only"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
