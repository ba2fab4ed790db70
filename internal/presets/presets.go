// Package presets holds the transmit signal presets reported by each board.
// Lists are index-aligned: entry i on the starboard board and entry i on the
// port board are the same logical preset even when their ids differ.
package presets

import (
	"fmt"

	"github.com/banshee-data/sidescan/internal/params"
	"github.com/banshee-data/sidescan/internal/sonar"
)

// Selection is a resolved preset index.
type Selection struct {
	Index       int    `json:"index"`
	StarboardID uint32 `json:"starboard_id"`
	PortID      uint32 `json:"port_id"`
	Label       string `json:"label"`
}

// Registry is read-only after construction and safe to share.
type Registry struct {
	starboard []sonar.EnumValue
	port      []sonar.EnumValue
}

// New builds a registry from the two per-board lists. Either list being empty
// is fatal for the console and reported as sonar.ErrPresetsEmpty.
func New(starboard, port []sonar.EnumValue) (*Registry, error) {
	if len(starboard) == 0 || len(port) == 0 {
		return nil, fmt.Errorf("starboard %d, port %d: %w", len(starboard), len(port), sonar.ErrPresetsEmpty)
	}
	return &Registry{
		starboard: append([]sonar.EnumValue(nil), starboard...),
		port:      append([]sonar.EnumValue(nil), port...),
	}, nil
}

// Load queries both boards and builds the registry.
func Load(ctl sonar.Control) (*Registry, error) {
	if ctl == nil {
		return nil, sonar.ErrNoSonar
	}
	var lists [2][]sonar.EnumValue
	for _, src := range sonar.Sources {
		values, err := ctl.ListPresets(src)
		if err != nil {
			return nil, fmt.Errorf("list %s presets: %w", src, err)
		}
		lists[src] = values
	}
	return New(lists[sonar.Starboard], lists[sonar.Port])
}

// Len returns the number of logical presets, bounded by the shorter list.
// Index 0 is reserved, so valid indices are 1..Len()-1.
func (r *Registry) Len() int {
	return min(len(r.starboard), len(r.port))
}

// Validate checks a preset index against both lists.
func (r *Registry) Validate(i int) error {
	return params.ValidateSignalIndex(i, len(r.starboard), len(r.port))
}

// Resolve maps an index to the per-board ids and a display label. The label
// is the starboard name when both names match, otherwise both names.
func (r *Registry) Resolve(i int) (Selection, error) {
	if err := r.Validate(i); err != nil {
		return Selection{}, err
	}
	sb, pt := r.starboard[i], r.port[i]
	label := sb.Name
	if sb.Name != pt.Name {
		label = sb.Name + ", " + pt.Name
	}
	return Selection{Index: i, StarboardID: sb.Value, PortID: pt.Value, Label: label}, nil
}

// Entries returns every selectable preset in index order.
func (r *Registry) Entries() []Selection {
	var out []Selection
	for i := 1; i < r.Len(); i++ {
		s, _ := r.Resolve(i)
		out = append(out, s)
	}
	return out
}
