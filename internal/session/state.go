// Package session owns the console state: the commanded channel parameters,
// the display settings, and the recording lifecycle Idle → Armed → Recording.
//
// A Manager is not safe for concurrent use. The console serializes every
// event through one goroutine.
package session

import (
	"fmt"
	"time"

	"github.com/banshee-data/sidescan/internal/params"
)

// State of the recording lifecycle.
type State int

const (
	Idle State = iota
	Armed
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ChannelParameters is what both boards were last commanded.
type ChannelParameters struct {
	Range       float64          `json:"range_m"`
	ReceiveTime float64          `json:"receive_time_s"`
	Gain        params.GainCurve `json:"gain"`
	Signal      int              `json:"signal_index"`
}

// TrackSession is the current or last recording.
type TrackSession struct {
	Name      string    `json:"name,omitempty"`
	Sequence  int       `json:"sequence"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// Display holds the operator display settings. They never reach the sonar.
type Display struct {
	Brightness    float64          `json:"brightness"`
	Tone          params.ToneCurve `json:"tone"`
	SoundVelocity float64          `json:"sound_velocity"`
	ShipSpeed     float64          `json:"ship_speed"`
	FullScreen    bool             `json:"full_screen"`
}

// ConsoleState is the aggregate a Manager owns. Copies handed out by
// Snapshot are detached from the Manager.
type ConsoleState struct {
	Params        ChannelParameters `json:"params"`
	SignalLabel   string            `json:"signal_label,omitempty"`
	Display       Display           `json:"display"`
	Session       TrackSession      `json:"session"`
	Follow        bool              `json:"follow"`
	CatalogLocked bool              `json:"catalog_locked"`
	OpenTrack     string            `json:"open_track,omitempty"`
	Connected     bool              `json:"connected"`
}

// Initial values applied at startup.
const (
	InitialRange      = params.MaxRange
	InitialBrightness = 20.0
	InitialSignal     = 1
)

// EventKind enumerates operator and collaborator inputs.
type EventKind int

const (
	EventStepRange EventKind = iota
	EventStepGain
	EventStepSignal
	EventStepBrightness
	EventSetRange
	EventSetSignal
	EventSetBrightness
	EventStart
	EventStop
	EventFollow
	EventSelectTrack
	EventTracksChanged
)

func (k EventKind) String() string {
	switch k {
	case EventStepRange:
		return "step-range"
	case EventStepGain:
		return "step-gain"
	case EventStepSignal:
		return "step-signal"
	case EventStepBrightness:
		return "step-brightness"
	case EventSetRange:
		return "set-range"
	case EventSetSignal:
		return "set-signal"
	case EventSetBrightness:
		return "set-brightness"
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventFollow:
		return "follow"
	case EventSelectTrack:
		return "select-track"
	case EventTracksChanged:
		return "tracks-changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one input to the Manager. Only the fields the kind uses are read:
// Dir for steps, Gain for EventStepGain, Value for the Set kinds, On for
// EventFollow and Track for EventSelectTrack.
type Event struct {
	Kind  EventKind
	Dir   params.Direction
	Gain  params.GainParam
	Value float64
	On    bool
	Track string
}
