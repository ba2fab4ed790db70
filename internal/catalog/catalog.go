// Package catalog projects per-track source metadata into the list of tracks
// an operator can browse.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/sidescan/internal/sonar"
)

// Policy decides which data-completeness predicate a track must satisfy on
// both boards to be listed.
type Policy int

const (
	// RawOrComputed lists tracks where both boards have raw data, or both
	// have computed data.
	RawOrComputed Policy = iota
	// RawOnly lists tracks where both boards have raw data.
	RawOnly
)

func (p Policy) String() string {
	if p == RawOnly {
		return "raw-only"
	}
	return "raw-or-computed"
}

// ParsePolicy accepts the names produced by String.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "raw-only":
		return RawOnly, nil
	case "raw-or-computed", "":
		return RawOrComputed, nil
	default:
		return 0, fmt.Errorf("unknown catalog policy %q (want raw-only or raw-or-computed)", name)
	}
}

// SourceInfo is what the database reports for one board of one track.
type SourceInfo struct {
	Raw      bool `json:"raw"`
	Computed bool `json:"computed"`
}

// TrackInfo is the collaborator-reported metadata of one track. A board with
// no entry in Sources has no data.
type TrackInfo struct {
	Name    string                      `json:"name"`
	Created time.Time                   `json:"created"`
	Sources map[sonar.Source]SourceInfo `json:"-"`
}

// Entry is one browsable track.
type Entry struct {
	Name            string    `json:"name"`
	Created         time.Time `json:"created"`
	HasRawData      bool      `json:"has_raw_data"`
	HasComputedData bool      `json:"has_computed_data"`
}

// Catalog is the visible list plus the index of the open track, or -1.
type Catalog struct {
	Entries  []Entry `json:"entries"`
	Selected int     `json:"selected"`
}

// SelectedName returns the name of the selected entry, or "".
func (c Catalog) SelectedName() string {
	if c.Selected < 0 || c.Selected >= len(c.Entries) {
		return ""
	}
	return c.Entries[c.Selected].Name
}

// Index returns the position of name in the catalog, or -1.
func (c Catalog) Index(name string) int {
	for i, e := range c.Entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// Qualifies reports whether both boards of t satisfy the policy.
func (p Policy) Qualifies(t TrackInfo) bool {
	sb, port := t.Sources[sonar.Starboard], t.Sources[sonar.Port]
	raw := sb.Raw && port.Raw
	if p == RawOnly {
		return raw
	}
	return raw || (sb.Computed && port.Computed)
}

// Build recomputes the whole catalog. Entries are sorted by creation time,
// newest first, and the open track is re-selected by name.
func Build(tracks []TrackInfo, p Policy, open string) Catalog {
	entries := make([]Entry, 0, len(tracks))
	for _, t := range tracks {
		if !p.Qualifies(t) {
			continue
		}
		sb, port := t.Sources[sonar.Starboard], t.Sources[sonar.Port]
		entries = append(entries, Entry{
			Name:            t.Name,
			Created:         t.Created,
			HasRawData:      sb.Raw && port.Raw,
			HasComputedData: sb.Computed && port.Computed,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Created.Equal(entries[j].Created) {
			return entries[i].Created.After(entries[j].Created)
		}
		return entries[i].Name < entries[j].Name
	})

	c := Catalog{Entries: entries, Selected: -1}
	if open != "" {
		c.Selected = c.Index(open)
	}
	return c
}
