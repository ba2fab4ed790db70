package sonar

import (
	"errors"
	"fmt"
)

// ErrNoSonar is returned by operations that need the device when the console
// runs without one.
var ErrNoSonar = errors.New("sonar not connected")

// ErrPresetsEmpty is returned when either board reports no signal presets.
var ErrPresetsEmpty = errors.New("sonar reports no signal presets")

// ErrCatalogLocked is returned when a track is selected while recording.
var ErrCatalogLocked = errors.New("track selection is disabled while recording")

// ValidationError reports an operator-facing value outside its domain. The
// previous state is always retained.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// ApplyError reports that the first board rejected a command. Neither board
// changed.
type ApplyError struct {
	Command string
	Source  Source
	Err     error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: %s board rejected command: %v", e.Command, e.Source, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// PartialApplyError reports that one board accepted a command and the other
// rejected it. The accepted command is not rolled back, so the boards are out
// of step until the next successful apply.
type PartialApplyError struct {
	Command string
	Applied Source
	Failed  Source
	Err     error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("%s: applied to %s but %s board rejected command: %v",
		e.Command, e.Applied, e.Failed, e.Err)
}

func (e *PartialApplyError) Unwrap() error { return e.Err }

// ResolutionError reports configuration the device cannot honour: a name it
// does not enumerate, a field outside protocol range, or a rejected setup
// command. It aborts the whole configuration step.
type ResolutionError struct {
	Port   string
	Name   string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("sensor port %q: %s", e.Port, e.Reason)
	if e.Name != "" {
		msg += fmt.Sprintf(" %q", e.Name)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TransitionError reports a session lifecycle transition whose prerequisite
// commands failed. State is the stable state the session settled in.
type TransitionError struct {
	Event string
	State string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s failed (state %s): %v", e.Event, e.State, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
